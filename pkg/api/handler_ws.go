package api

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// wsHandler handles GET /ws: it upgrades the request and hands the
// connection to the stream hub, blocking until the client disconnects.
func (s *Server) wsHandler(c *gin.Context) {
	if s.hub == nil {
		respondError(c, http.StatusServiceUnavailable, "WebSocket not available")
		return
	}

	opts := &websocket.AcceptOptions{OriginPatterns: s.origins}
	if len(s.origins) == 0 {
		opts.InsecureSkipVerify = true
	}

	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}

	s.hub.HandleConnection(c.Request.Context(), conn)
}
