package domain

import (
	"io"
	"net"
	"strconv"
	"time"
)

// ConnectionID identifies one accepted TCP connection. IDs are assigned in accept order,
// starting at 0, and are never reused for the lifetime of a relay.
type ConnectionID uint64

func (id ConnectionID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseConnectionID parses the decimal form produced by String.
func ParseConnectionID(s string) (ConnectionID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ConnectionID(v), nil
}

// Peer is the write side of a registered connection. A net.Conn satisfies it; the
// same value may be read by its reader goroutine while the broadcaster writes to it.
type Peer interface {
	io.Writer
	io.Closer
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
}

// Connection is one registry entry.
type Connection struct {
	ID   ConnectionID
	Peer Peer
}

// ConnectionRegistry is the shared table of live connections.
type ConnectionRegistry interface {
	Insert(id ConnectionID, peer Peer) error
	Remove(id ConnectionID) bool
	Lookup(id ConnectionID) (Peer, bool)
	Snapshot() []Connection
	Len() int
	CloseAll() int
}
