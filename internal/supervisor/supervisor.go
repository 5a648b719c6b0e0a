// Package supervisor wires the watcher, rebuild loop, reload broadcaster and
// HTTP server together and owns their lifetimes.
//
// Startup order is renderer (initial full build), broadcaster, watcher,
// rebuild loop, HTTP server. Shutdown runs in reverse: HTTP server, rebuild
// loop, watcher.
package supervisor

import (
	"context"
	"net"
	"os"
	"sync"
	"time"

	"github.com/conneroisu/docserve/internal/config"
	"github.com/conneroisu/docserve/internal/errors"
	"github.com/conneroisu/docserve/internal/logging"
	"github.com/conneroisu/docserve/internal/metrics"
	"github.com/conneroisu/docserve/internal/rebuild"
	"github.com/conneroisu/docserve/internal/reload"
	"github.com/conneroisu/docserve/internal/renderer"
	"github.com/conneroisu/docserve/internal/server"
	"github.com/conneroisu/docserve/internal/watcher"
)

// ShutdownTimeout bounds how long in-flight requests may take to finish.
const ShutdownTimeout = 5 * time.Second

// Options configures a Supervisor. Only Config is required.
type Options struct {
	Config *config.Config

	// Factory constructs renderers; defaults to the command renderer.
	Factory renderer.Factory
	// Resolver locates auxiliary watch roots; defaults to resolving them
	// relative to the project path.
	Resolver renderer.Resolver
	// Reconfigure re-reads the renderer configuration on restart; defaults
	// to config.Reload.
	Reconfigure func() (config.RendererConfig, error)

	// Log is the host's log(level, msg) callback. It takes precedence over
	// Logger.
	Log    logging.Func
	Logger logging.Logger

	Metrics *metrics.Metrics
}

// Supervisor runs the pipeline until its context is cancelled.
type Supervisor struct {
	cfg         *config.Config
	factory     renderer.Factory
	resolver    renderer.Resolver
	reconfigure func() (config.RendererConfig, error)
	baseLogger  logging.Logger
	logger      logging.Logger
	metrics     *metrics.Metrics

	ref         *renderer.Ref
	pending     *watcher.PendingSet
	broadcaster *reload.Broadcaster
	watcher     *watcher.Watcher
	throttler   *rebuild.Throttler
	server      *server.Server

	mu      sync.Mutex
	initial rebuild.Status
	ready   chan struct{}
}

// New validates opts and returns a supervisor. Nothing runs until Run.
func New(opts Options) (*Supervisor, error) {
	if opts.Config == nil {
		return nil, errors.NewConfigError("NO_CONFIG", "supervisor needs a configuration", nil)
	}

	logger := opts.Logger
	if opts.Log != nil {
		logger = logging.FromFunc(opts.Log)
	}
	if logger == nil {
		logger = logging.NewLogger(logging.DefaultConfig())
	}

	s := &Supervisor{
		cfg:         opts.Config,
		factory:     opts.Factory,
		resolver:    opts.Resolver,
		reconfigure: opts.Reconfigure,
		logger:      logger.WithComponent("supervisor"),
		metrics:     opts.Metrics,
		ready:       make(chan struct{}),
	}
	if s.factory == nil {
		s.factory = renderer.CommandFactory(logger)
	}
	if s.resolver == nil {
		s.resolver = renderer.DirResolver{Base: opts.Config.ProjectPath}
	}
	if s.reconfigure == nil {
		s.reconfigure = func() (config.RendererConfig, error) {
			cfg, err := config.Reload()
			if err != nil {
				return config.RendererConfig{}, err
			}
			return cfg.Renderer, nil
		}
	}
	s.baseLogger = logger
	return s, nil
}

// Ready is closed once the HTTP server is listening.
func (s *Supervisor) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the listening address, or nil before Ready.
func (s *Supervisor) Addr() net.Addr {
	if s.server == nil {
		return nil
	}
	return s.server.Addr()
}

// Run starts every component, blocks until ctx is cancelled or the HTTP
// server fails, then shuts everything down. A failed initial build is
// reported but not fatal; a renderer that cannot be constructed or an
// address that cannot be bound is.
func (s *Supervisor) Run(ctx context.Context) error {
	rendererOpts := renderer.OptionsFrom(s.cfg.Renderer)

	if s.cfg.Server.Clean {
		if err := s.clean(rendererOpts); err != nil {
			return err
		}
	}

	current, err := s.factory(rendererOpts)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "RENDERER_INIT", "cannot construct renderer")
	}
	s.ref = renderer.NewRef(current)
	s.initialBuild(ctx, current)

	s.broadcaster = reload.NewBroadcaster()
	s.pending = watcher.NewPendingSet()

	s.watcher, err = watcher.New(s.pending, s.roots(rendererOpts), watcher.Options{
		Ignore:              s.cfg.Watch.Ignore,
		IgnoreDirs:          []string{rendererOpts.OutputDir, rendererOpts.DoctreeDir},
		ResubscribeAttempts: s.cfg.Watch.ResubscribeAttempts,
		ResubscribeBackoff:  s.cfg.Watch.ResubscribeBackoff,
		OnChange: func(c watcher.Change) {
			s.metrics.Changed(c.Kind.String())
		},
	}, s.baseLogger)
	if err != nil {
		return err
	}
	if err := s.watcher.Start(); err != nil {
		return err
	}

	s.throttler = rebuild.New(s.pending, s.ref, s.broadcaster, rebuild.Options{
		Interval:    s.cfg.Watch.Throttle,
		Factory:     s.factory,
		Reconfigure: s.reconfigure,
		Rewatch: func(opts renderer.Options) error {
			return s.watcher.Rewatch(s.roots(opts))
		},
		ConfigFiles: []string{s.cfg.File},
		Metrics:     s.metrics,
	}, s.baseLogger)
	// Only stopPipeline ends the loop, after the server has drained.
	s.throttler.Start(context.WithoutCancel(ctx))

	s.server = server.New(server.Options{
		Root:            rendererOpts.OutputDir,
		Host:            s.cfg.Server.Host,
		Port:            s.cfg.Server.Port,
		Heartbeat:       s.cfg.Reload.Heartbeat,
		ScrollSelectors: s.cfg.Reload.ScrollSelectors,
		Broadcaster:     s.broadcaster,
		Metrics:         s.metrics,
		Status:          s.status,
		Logger:          s.baseLogger,
	})
	if err := s.server.Listen(); err != nil {
		s.stopPipeline()
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.server.Serve()
	}()
	close(s.ready)

	s.logger.Info(ctx, "Watching for changes",
		"url", "http://"+s.server.Addr().String(),
		"source", rendererOpts.SourceDir,
		"output", rendererOpts.OutputDir,
	)

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info(context.Background(), "Shutting down")
	case runErr = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(context.Background(), err, "HTTP shutdown incomplete")
	}
	s.logger.Debug(context.Background(), "HTTP server stopped")
	s.stopPipeline()

	return runErr
}

// stopPipeline stops the rebuild loop, then the watcher, then releases any
// remaining reload waiters.
func (s *Supervisor) stopPipeline() {
	s.throttler.Stop()
	if err := s.watcher.Stop(); err != nil {
		s.logger.Warn(context.Background(), err, "Stopping watcher failed")
	}
	s.broadcaster.Close()
}

// initialBuild renders everything once before serving.
func (s *Supervisor) initialBuild(ctx context.Context, r renderer.Renderer) {
	s.logger.Info(ctx, "Initial build", "builder", r.Options().Builder)

	start := time.Now()
	err := r.Build(ctx, nil)
	duration := time.Since(start)
	s.metrics.ObserveBuild(rebuild.All.String(), duration, err)

	s.mu.Lock()
	s.initial = rebuild.Status{Mode: rebuild.All, Err: err, Finished: time.Now(), Duration: duration}
	s.mu.Unlock()

	if err != nil {
		fields := []interface{}{}
		if output := errors.BuildOutput(err); output != "" {
			fields = append(fields, "output", output)
		}
		s.logger.Error(ctx, err, "Initial build failed; serving the existing output", fields...)
	}
}

// roots adds the project configuration file to the renderer's roots.
func (s *Supervisor) roots(opts renderer.Options) []watcher.Root {
	roots := renderer.WatchRoots(opts, s.resolver, func(id string, err error) {
		s.logger.Warn(context.Background(), err, "Skipping auxiliary watch root", "root", id)
	})
	if s.cfg.File != "" {
		roots = append(roots, watcher.Root{Path: s.cfg.File})
	}
	return roots
}

// status reports the latest build for the health endpoint.
func (s *Supervisor) status() server.BuildInfo {
	last := s.throttler.Last()
	if last.Finished.IsZero() {
		s.mu.Lock()
		last = s.initial
		s.mu.Unlock()
	}
	return server.BuildInfo{
		Builder:  s.ref.Load().Options().Builder,
		Mode:     last.Mode.String(),
		Err:      last.Err,
		Finished: last.Finished,
		Duration: last.Duration,
	}
}

// clean removes the output and doctree directories. It refuses to remove a
// directory that contains the sources or the project itself.
func (s *Supervisor) clean(opts renderer.Options) error {
	for _, dir := range []string{opts.OutputDir, opts.DoctreeDir} {
		if dir == "" {
			continue
		}
		if watcher.Within(opts.SourceDir, dir) || watcher.Within(s.cfg.ProjectPath, dir) {
			return errors.NewConfigError("UNSAFE_CLEAN", "refusing to clean a directory containing the sources", nil).
				WithPath(dir)
		}
		if err := os.RemoveAll(dir); err != nil {
			return errors.NewIOError("CLEAN_FAILED", "cannot remove build output", err).WithPath(dir)
		}
		s.logger.Info(context.Background(), "Removed build output", "path", dir)
	}
	return nil
}
