package rebuild

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/conneroisu/docserve/internal/config"
	"github.com/conneroisu/docserve/internal/errors"
	"github.com/conneroisu/docserve/internal/logging"
	"github.com/conneroisu/docserve/internal/metrics"
	"github.com/conneroisu/docserve/internal/renderer"
	"github.com/conneroisu/docserve/internal/watcher"
)

// DefaultInterval is the batching cadence.
const DefaultInterval = time.Second

const tracerName = "github.com/conneroisu/docserve/internal/rebuild"

// Notifier is woken after every successful build.
type Notifier interface {
	NotifyAll()
}

// Options configures a Throttler.
type Options struct {
	// Interval between drains of the pending set.
	Interval time.Duration
	// Factory constructs the replacement renderer on Restart.
	Factory renderer.Factory
	// Reconfigure re-reads the renderer configuration on Restart. When nil
	// the previous configuration is reused.
	Reconfigure func() (config.RendererConfig, error)
	// Rewatch re-subscribes the watcher for a freshly installed renderer.
	Rewatch func(renderer.Options) error
	// ConfigFiles are additional files whose change forces a Restart.
	ConfigFiles []string
	Metrics     *metrics.Metrics
	Tracer      trace.Tracer
}

// Status describes the most recent build.
type Status struct {
	Mode     Mode
	Files    int
	Err      error
	Finished time.Time
	Duration time.Duration
}

// Throttler drains the pending set on a fixed cadence and rebuilds.
type Throttler struct {
	pending  *watcher.PendingSet
	ref      *renderer.Ref
	notifier Notifier
	opts     Options
	logger   logging.Logger
	tracer   trace.Tracer

	mu     sync.Mutex
	last   Status
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a throttler. Nothing runs until Start.
func New(pending *watcher.PendingSet, ref *renderer.Ref, notifier Notifier, opts Options, logger logging.Logger) *Throttler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if logger == nil {
		logger = logging.Nop()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Throttler{
		pending:  pending,
		ref:      ref,
		notifier: notifier,
		opts:     opts,
		logger:   logger.WithComponent("rebuild"),
		tracer:   tracer,
	}
}

// Start runs the batching loop in its own goroutine until Stop or until ctx
// is cancelled.
func (t *Throttler) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done != nil {
		return
	}

	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	go func() {
		defer close(t.done)
		t.Run(ctx)
	}()
}

// Stop ends the loop and waits for an in-flight build to finish.
func (t *Throttler) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run blocks, flushing the pending set every interval until ctx is done.
func (t *Throttler) Run(ctx context.Context) {
	ticker := time.NewTicker(t.opts.Interval)
	defer ticker.Stop()
	defer t.logger.Debug(context.Background(), "Rebuild loop stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Shutdown is observed between the sleep and the drain.
		if ctx.Err() != nil {
			return
		}
		t.Flush(ctx)
	}
}

// Flush drains the pending set and rebuilds once. It reports whether a
// build ran.
func (t *Throttler) Flush(ctx context.Context) bool {
	batch := t.pending.Drain()
	if len(batch) == 0 {
		return false
	}

	current := t.ref.Load()
	if current == nil {
		return false
	}

	classifier := NewClassifier(current.Options(), t.opts.ConfigFiles...)
	plan, ok := classifier.Classify(batch)
	if !ok {
		t.logger.Debug(ctx, "Ignoring batch", "changes", len(batch))
		return false
	}

	// In-flight builds are allowed to finish after shutdown begins.
	buildCtx := context.WithoutCancel(ctx)
	buildCtx, span := t.tracer.Start(buildCtx, "docserve.rebuild",
		trace.WithAttributes(
			attribute.String("docserve.mode", plan.Mode.String()),
			attribute.Int("docserve.changes", len(batch)),
			attribute.Int("docserve.files", len(plan.Files)),
		),
	)
	defer span.End()

	t.logger.Info(ctx, "Rebuilding",
		"mode", plan.Mode.String(),
		"changes", len(batch),
		"files", len(plan.Files),
	)

	start := time.Now()
	var err error
	switch plan.Mode {
	case Restart:
		err = t.restart(buildCtx)
	case All:
		err = current.Build(buildCtx, nil)
	case Selected:
		err = current.Build(buildCtx, plan.Files)
	}
	duration := time.Since(start)

	t.opts.Metrics.ObserveBuild(plan.Mode.String(), duration, err)
	t.record(Status{
		Mode:     plan.Mode,
		Files:    len(plan.Files),
		Err:      err,
		Finished: time.Now(),
		Duration: duration,
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.reportFailure(ctx, plan, err)
		return true
	}
	span.SetStatus(codes.Ok, "")

	t.logger.Info(ctx, "Build finished", "mode", plan.Mode.String(), "duration", duration)
	t.notifier.NotifyAll()
	t.opts.Metrics.Reloaded()
	return true
}

// restart constructs a fresh renderer with the previous paths, builder and
// parallelism, builds everything and installs it before re-subscribing the
// watcher. The new renderer is installed even when its build fails so the
// next change retries against the new configuration.
func (t *Throttler) restart(ctx context.Context) error {
	previous := t.ref.Load()
	if t.opts.Factory == nil {
		return previous.Build(ctx, nil)
	}

	opts := previous.Options()
	if t.opts.Reconfigure != nil {
		cfg, err := t.opts.Reconfigure()
		if err != nil {
			return errors.NewConfigError("RELOAD_FAILED", "cannot re-read renderer configuration", err)
		}
		opts = opts.WithConfig(cfg)
	}

	next, err := t.opts.Factory(opts)
	if err != nil {
		return errors.NewConfigError("RENDERER_INIT", "cannot construct renderer", err)
	}

	buildErr := next.Build(ctx, nil)

	t.ref.Store(next)
	if t.opts.Rewatch != nil {
		if err := t.opts.Rewatch(next.Options()); err != nil {
			t.logger.Warn(ctx, err, "Re-subscribing watcher failed")
		}
	}

	return buildErr
}

func (t *Throttler) reportFailure(ctx context.Context, plan Plan, err error) {
	fields := []interface{}{"mode", plan.Mode.String()}
	if output := errors.BuildOutput(err); output != "" {
		fields = append(fields, "output", output)
	}
	t.logger.Error(ctx, err, "Build failed", fields...)
}

func (t *Throttler) record(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = status
}

// Last returns the most recent build status. Finished is zero before the
// first build.
func (t *Throttler) Last() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
