package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/conneroisu/docserve/internal/version"
)

type healthResponse struct {
	Status      string       `json:"status"`
	Version     string       `json:"version"`
	Root        string       `json:"root"`
	Subscribers int          `json:"subscribers"`
	LastBuild   *buildReport `json:"last_build,omitempty"`
}

type buildReport struct {
	Builder    string    `json:"builder,omitempty"`
	Mode       string    `json:"mode,omitempty"`
	OK         bool      `json:"ok"`
	Error      string    `json:"error,omitempty"`
	Finished   time.Time `json:"finished"`
	DurationMS int64     `json:"duration_ms"`
}

// handleHealth reports liveness and the outcome of the last build.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Version:     version.GetShortVersion(),
		Root:        s.opts.Root,
		Subscribers: s.opts.Broadcaster.Waiters(),
	}

	if s.opts.Status != nil {
		info := s.opts.Status()
		report := &buildReport{
			Builder:    info.Builder,
			Mode:       info.Mode,
			OK:         info.Err == nil,
			Finished:   info.Finished,
			DurationMS: info.Duration.Milliseconds(),
		}
		if info.Err != nil {
			report.Error = info.Err.Error()
			resp.Status = "degraded"
		}
		resp.LastBuild = report
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Debug(r.Context(), "Encoding health response failed", "error", err.Error())
	}
}
