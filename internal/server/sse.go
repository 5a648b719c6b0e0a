package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/conneroisu/docserve/internal/reload"
)

// SSE frames.
var (
	reloadFrame    = []byte("data: reload\n\n")
	heartbeatFrame = []byte("data: heartbeat\n\n")
)

// writeWait bounds a single frame write to a stalled client.
const writeWait = 10 * time.Second

// handleSSE parks the client on the broadcaster and sends one frame per
// wake or timeout until the client goes away or the server shuts down.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Warn(r.Context(), err, "Streaming unsupported")
		return
	}

	done := s.opts.Metrics.SSEConnected()
	defer done()

	ctx := r.Context()
	for {
		var frame []byte
		switch s.opts.Broadcaster.Await(ctx, s.opts.Heartbeat) {
		case reload.Woken:
			frame = reloadFrame
		case reload.Timeout:
			frame = heartbeatFrame
		default:
			return
		}

		if err := rc.SetWriteDeadline(time.Now().Add(writeWait)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return
		}
		if _, err := w.Write(frame); err != nil {
			// A closed client is not an error worth reporting.
			s.logger.Debug(ctx, "Reload stream closed", "error", err.Error())
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
