package api

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// wsHandler upgrades GET /ws to a WebSocket and hands the connection
// to the ConnectionManager, which blocks until the client goes away.
func (s *Server) wsHandler(c *gin.Context) {
	if s.connManager == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "websocket_unavailable"})
		return
	}

	opts := &websocket.AcceptOptions{OriginPatterns: s.wsOrigins}
	if len(s.wsOrigins) == 0 {
		// No dashboard origins configured; local single-user setup.
		opts = &websocket.AcceptOptions{InsecureSkipVerify: true}
	}

	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		// Accept already wrote the HTTP error response.
		return
	}

	s.connManager.HandleConnection(c.Request.Context(), conn)
}
