package tcp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/pscheid92/linecast/internal/domain"
)

// read logs every complete line from conn until EOF or a read error. An unterminated
// trailing fragment is dropped. On exit the connection is deregistered and closed.
func (l *Listener) read(ctx context.Context, id domain.ConnectionID, conn net.Conn) {
	defer func() {
		l.registry.Remove(id)
		_ = conn.Close()
		l.metrics.ActiveConnections.Dec()
	}()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if line != "" {
				slog.DebugContext(ctx, "Discarded unterminated line", "bytes", len(line))
			}
			switch {
			case errors.Is(err, io.EOF):
				slog.InfoContext(ctx, "Connection closed by client")
			case errors.Is(err, net.ErrClosed):
				slog.InfoContext(ctx, "Connection closed by relay")
			default:
				slog.WarnContext(ctx, "Connection read failed", "error", err)
			}
			return
		}

		l.metrics.LinesReceived.Inc()
		slog.InfoContext(ctx, "Line received", "line", strings.TrimRight(line, "\r\n"))
	}
}
