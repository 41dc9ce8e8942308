package httpserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pscheid92/linecast/internal/domain"
	apperrors "github.com/pscheid92/linecast/internal/platform/errors"
)

type connectionResponse struct {
	ID         domain.ConnectionID `json:"id"`
	RemoteAddr string              `json:"remote_addr"`
}

type connectionsResponse struct {
	Count       int                  `json:"count"`
	Connections []connectionResponse `json:"connections"`
}

type broadcastRequest struct {
	Message string `json:"message"`
}

func (s *Server) registerAPIRoutes() {
	s.echo.GET("/api/connections", s.handleListConnections)
	s.echo.GET("/api/connections/:id", s.handleGetConnection)
	s.echo.POST("/api/broadcast", s.handleBroadcast, newRateLimiter(s.config.AdminBroadcastRate, s.config.AdminBroadcastBurst))
}

func (s *Server) handleListConnections(c echo.Context) error {
	snapshot := s.connections.Snapshot()

	response := connectionsResponse{
		Count:       len(snapshot),
		Connections: make([]connectionResponse, 0, len(snapshot)),
	}
	for _, conn := range snapshot {
		response.Connections = append(response.Connections, toConnectionResponse(conn.ID, conn.Peer))
	}

	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetConnection(c echo.Context) error {
	raw := c.Param("id")
	id, err := domain.ParseConnectionID(raw)
	if err != nil {
		return apperrors.ValidationError("invalid connection id").WithContext("id", raw)
	}

	peer, ok := s.connections.Lookup(id)
	if !ok {
		return apperrors.NotFoundError("connection not found", domain.ErrConnectionNotFound).WithContext("connection_id", id)
	}

	if err := c.JSON(http.StatusOK, toConnectionResponse(id, peer)); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleBroadcast(c echo.Context) error {
	var req broadcastRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return apperrors.ValidationError("message must not be empty")
	}
	if strings.ContainsAny(strings.TrimRight(req.Message, "\r\n"), "\r\n") {
		return apperrors.ValidationError("message must be a single line")
	}

	// Refused once the relay has started closing clients
	if s.connections.Closed() {
		return fmt.Errorf("broadcast: %w", domain.ErrRegistryClosed)
	}

	result := s.broadcaster.Broadcast(c.Request().Context(), req.Message)

	if err := c.JSON(http.StatusOK, result); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func toConnectionResponse(id domain.ConnectionID, peer domain.Peer) connectionResponse {
	resp := connectionResponse{ID: id}
	if addr := peer.RemoteAddr(); addr != nil {
		resp.RemoteAddr = addr.String()
	}
	return resp
}
