// Package server serves the rendered output tree with the reload client
// injected into every HTML page, and the streams that tell browsers to
// reload.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/conneroisu/docserve/internal/config"
	docerrors "github.com/conneroisu/docserve/internal/errors"
	"github.com/conneroisu/docserve/internal/inject"
	"github.com/conneroisu/docserve/internal/logging"
	"github.com/conneroisu/docserve/internal/metrics"
	"github.com/conneroisu/docserve/internal/reload"
)

// Internal endpoints live under this prefix, away from the output tree.
const (
	HealthPath    = "/__docserve__/health"
	MetricsPath   = "/__docserve__/metrics"
	WebSocketPath = "/__docserve__/ws"
)

// BuildInfo summarizes the most recent build for the health endpoint.
type BuildInfo struct {
	Builder  string
	Mode     string
	Err      error
	Finished time.Time
	Duration time.Duration
}

// Options configures a Server.
type Options struct {
	// Root is the output tree.
	Root string
	Host string
	Port int
	// Heartbeat is how long a stream waits for a build before sending a
	// heartbeat.
	Heartbeat       time.Duration
	ScrollSelectors []string
	// AllowedOrigins are extra host patterns accepted on the websocket.
	AllowedOrigins []string
	Broadcaster    *reload.Broadcaster
	Metrics        *metrics.Metrics
	// Status reports the last build; optional.
	Status func() BuildInfo
	Logger logging.Logger
}

// Server is the HTTP front end.
type Server struct {
	opts     Options
	injector *inject.Injector
	logger   logging.Logger
	handler  http.Handler

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu           sync.Mutex
	httpServer   *http.Server
	listener     net.Listener
	shutdownOnce sync.Once
}

// New creates a server. Nothing listens until Listen.
func New(opts Options) *Server {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = reload.DefaultTimeout
	}
	if opts.Broadcaster == nil {
		opts.Broadcaster = reload.NewBroadcaster()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:       opts,
		injector:   inject.New(opts.ScrollSelectors),
		logger:     opts.Logger.WithComponent("server"),
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get(HealthPath, s.handleHealth)
	r.Handle(MetricsPath, s.opts.Metrics.Handler())
	r.Get(WebSocketPath, s.handleWebSocket)

	r.Get("/*", s.handleRequest)
	r.Head("/*", s.handleRequest)

	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// handleRequest dispatches the reload stream, which the client opens
// relative to the current page, and everything else to the file handler.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if path.Base(r.URL.Path) == config.HotReloadPath {
		s.handleSSE(w, r)
		return
	}
	s.handleFile(w, r)
}

// Listen binds the configured address with SO_REUSEADDR.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	lc := net.ListenConfig{Control: reuseAddr}
	l, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return docerrors.NewBindError(addr, err)
	}

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until Shutdown. It returns nil after a
// graceful shutdown.
func (s *Server) Serve() error {
	s.mu.Lock()
	l := s.listener
	if l == nil {
		s.mu.Unlock()
		return docerrors.NewInternalError("NOT_LISTENING", "Serve called before Listen", nil)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info(context.Background(), "Serving documentation",
		"addr", l.Addr().String(),
		"root", s.opts.Root,
	)

	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return docerrors.NewIOError("SERVE_FAILED", "http server stopped", err)
	}
	return nil
}

// Shutdown ends every reload stream and stops the server, waiting for
// in-flight file requests up to ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		// Parked streams observe the cancelled request context and return.
		s.cancelBase()

		s.mu.Lock()
		srv, l := s.httpServer, s.listener
		s.mu.Unlock()

		switch {
		case srv != nil:
			err = srv.Shutdown(ctx)
		case l != nil:
			err = l.Close()
		}
	})
	return err
}

// logRequests logs each request at debug level.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug(r.Context(), "Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}
