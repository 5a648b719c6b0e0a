package server

import (
	"context"
	"net/http"

	"github.com/coder/websocket"

	"github.com/conneroisu/docserve/internal/reload"
)

// Websocket messages mirror the SSE frames.
const (
	reloadMessage    = "reload"
	heartbeatMessage = "heartbeat"
)

// handleWebSocket is the websocket mirror of the SSE reload stream for
// clients that cannot use EventSource.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.opts.AllowedOrigins,
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}
	defer conn.CloseNow()

	// The client never sends; CloseRead cancels ctx when it disconnects.
	ctx := conn.CloseRead(r.Context())

	done := s.opts.Metrics.WSConnected()
	defer done()

	for {
		var message string
		switch s.opts.Broadcaster.Await(ctx, s.opts.Heartbeat) {
		case reload.Woken:
			message = reloadMessage
		case reload.Timeout:
			message = heartbeatMessage
		default:
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}

		writeCtx, cancel := context.WithTimeout(ctx, writeWait)
		err := conn.Write(writeCtx, websocket.MessageText, []byte(message))
		cancel()
		if err != nil {
			s.logger.Debug(ctx, "WebSocket stream closed", "error", err.Error())
			return
		}
	}
}
