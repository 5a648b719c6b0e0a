package rebuild

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/docserve/internal/config"
	"github.com/conneroisu/docserve/internal/metrics"
	"github.com/conneroisu/docserve/internal/renderer"
	"github.com/conneroisu/docserve/internal/renderer/renderertest"
	"github.com/conneroisu/docserve/internal/watcher"
)

type countingNotifier struct {
	count atomic.Int32
}

func (n *countingNotifier) NotifyAll() { n.count.Add(1) }

type fixture struct {
	pending  *watcher.PendingSet
	ref      *renderer.Ref
	current  *renderertest.Recorder
	notifier *countingNotifier

	mu        sync.Mutex
	created   []*renderertest.Recorder
	rewatches []renderer.Options
}

func newFixture() *fixture {
	f := &fixture{
		pending:  watcher.NewPendingSet(),
		current:  renderertest.New(docsOptions()),
		notifier: &countingNotifier{},
	}
	f.ref = renderer.NewRef(f.current)
	return f
}

func (f *fixture) throttler(opts Options) *Throttler {
	if opts.Factory == nil {
		opts.Factory = renderertest.Factory(func(r *renderertest.Recorder) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.created = append(f.created, r)
		})
	}
	if opts.Rewatch == nil {
		opts.Rewatch = func(o renderer.Options) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.rewatches = append(f.rewatches, o)
			return nil
		}
	}
	opts.Metrics = metrics.New()
	return New(f.pending, f.ref, f.notifier, opts, nil)
}

func (f *fixture) modify(paths ...string) {
	for _, p := range paths {
		f.pending.Add(watcher.Change{Path: p, Kind: watcher.EventModified})
	}
}

func TestFlushSelected(t *testing.T) {
	f := newFixture()
	th := f.throttler(Options{})

	f.modify("/docs/a.rst")
	assert.True(t, th.Flush(context.Background()))

	assert.Equal(t, [][]string{{"/docs/a.rst"}}, f.current.Calls())
	assert.Equal(t, int32(1), f.notifier.count.Load())
	assert.Equal(t, Selected, th.Last().Mode)
	assert.NoError(t, th.Last().Err)
}

func TestFlushMixedBatchBuildsAllOnce(t *testing.T) {
	f := newFixture()
	th := f.throttler(Options{})

	f.modify("/docs/a.rst", "/docs/img.png")
	assert.True(t, th.Flush(context.Background()))

	assert.Equal(t, [][]string{nil}, f.current.Calls())
	assert.Equal(t, int32(1), f.notifier.count.Load())
}

func TestFlushEmptyAndIgnoredBatches(t *testing.T) {
	f := newFixture()
	th := f.throttler(Options{})

	assert.False(t, th.Flush(context.Background()))

	f.modify("/docs/a.rst~", "/docs/index.rst~")
	assert.False(t, th.Flush(context.Background()))

	f.modify("/docs/_build/html/index.html")
	assert.False(t, th.Flush(context.Background()))

	assert.Empty(t, f.current.Calls())
	assert.Equal(t, int32(0), f.notifier.count.Load())
	assert.True(t, th.Last().Finished.IsZero())
}

func TestFlushFailureDoesNotNotify(t *testing.T) {
	f := newFixture()
	th := f.throttler(Options{})

	f.current.Fail(errors.New("syntax error"))
	f.modify("/docs/a.rst")
	assert.True(t, th.Flush(context.Background()))
	assert.Equal(t, int32(0), f.notifier.count.Load())
	assert.Error(t, th.Last().Err)

	// The next change retries.
	f.current.Fail(nil)
	f.modify("/docs/a.rst")
	assert.True(t, th.Flush(context.Background()))
	assert.Equal(t, int32(1), f.notifier.count.Load())
	assert.Len(t, f.current.Calls(), 2)
}

func TestChangesDuringBuildGoToNextBatch(t *testing.T) {
	f := newFixture()
	th := f.throttler(Options{})

	first := true
	f.current.OnBuild = func(context.Context, []string) error {
		if first {
			first = false
			f.modify("/docs/b.rst")
		}
		return nil
	}

	f.modify("/docs/a.rst")
	assert.True(t, th.Flush(context.Background()))
	assert.True(t, th.Flush(context.Background()))

	assert.Equal(t, [][]string{{"/docs/a.rst"}, {"/docs/b.rst"}}, f.current.Calls())
	assert.Equal(t, int32(2), f.notifier.count.Load())
}

func TestFlushRestart(t *testing.T) {
	f := newFixture()
	reconfigured := config.RendererConfig{
		SourceDir:      "/ignored",
		Builder:        "ignored",
		ConfigFile:     "conf.py",
		SourceSuffixes: []string{".rst"},
		Watch:          []string{"/themes/custom"},
	}
	th := f.throttler(Options{
		Reconfigure: func() (config.RendererConfig, error) { return reconfigured, nil },
	})

	f.modify("/docs/conf.py", "/docs/a.rst")
	assert.True(t, th.Flush(context.Background()))

	require.Len(t, f.created, 1)
	next := f.created[0]
	assert.Same(t, next, f.ref.Load())
	assert.Equal(t, [][]string{nil}, next.Calls())
	assert.Empty(t, f.current.Calls())

	opts := next.Options()
	assert.Equal(t, "/docs", opts.SourceDir)
	assert.Equal(t, "html", opts.Builder)
	assert.Equal(t, []string{"/themes/custom"}, opts.Config.Watch)

	require.Len(t, f.rewatches, 1)
	assert.Equal(t, []string{"/themes/custom"}, f.rewatches[0].Config.Watch)
	assert.Equal(t, int32(1), f.notifier.count.Load())
	assert.Equal(t, Restart, th.Last().Mode)
}

func TestFlushRestartRelativeConfigFile(t *testing.T) {
	project := t.TempDir()
	origWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(project))
	t.Cleanup(func() { _ = os.Chdir(origWD) })
	wd, err := os.Getwd()
	require.NoError(t, err)

	f := newFixture()
	th := f.throttler(Options{ConfigFiles: []string{"docserve.yaml"}})

	f.modify(filepath.Join(wd, "docserve.yaml"))
	assert.True(t, th.Flush(context.Background()))

	assert.Equal(t, Restart, th.Last().Mode)
	assert.Len(t, f.created, 1)
}

func TestFlushRestartInstallsBeforeRewatch(t *testing.T) {
	f := newFixture()
	var installed renderer.Renderer
	th := f.throttler(Options{
		Rewatch: func(renderer.Options) error {
			installed = f.ref.Load()
			return nil
		},
	})

	f.modify("/docs/conf.py")
	th.Flush(context.Background())

	require.Len(t, f.created, 1)
	assert.Same(t, f.created[0], installed)
}

func TestFlushRestartFactoryFailureKeepsRenderer(t *testing.T) {
	f := newFixture()
	th := f.throttler(Options{
		Factory: func(renderer.Options) (renderer.Renderer, error) {
			return nil, errors.New("bad command")
		},
	})

	f.modify("/docs/conf.py")
	assert.True(t, th.Flush(context.Background()))

	assert.Same(t, f.current, f.ref.Load())
	assert.Empty(t, f.rewatches)
	assert.Equal(t, int32(0), f.notifier.count.Load())
	assert.Error(t, th.Last().Err)
}

func TestFlushRestartReconfigureFailure(t *testing.T) {
	f := newFixture()
	th := f.throttler(Options{
		Reconfigure: func() (config.RendererConfig, error) {
			return config.RendererConfig{}, errors.New("yaml: line 3")
		},
		ConfigFiles: []string{"/docs/docserve.yaml"},
	})

	f.modify("/docs/docserve.yaml")
	assert.True(t, th.Flush(context.Background()))
	assert.Same(t, f.current, f.ref.Load())
	assert.Equal(t, int32(0), f.notifier.count.Load())
}

func TestFlushRestartBuildFailureStillInstalls(t *testing.T) {
	f := newFixture()
	th := f.throttler(Options{
		Factory: func(opts renderer.Options) (renderer.Renderer, error) {
			r := renderertest.New(opts)
			r.Fail(errors.New("extension missing"))
			f.mu.Lock()
			f.created = append(f.created, r)
			f.mu.Unlock()
			return r, nil
		},
	})

	f.modify("/docs/conf.py")
	assert.True(t, th.Flush(context.Background()))

	require.Len(t, f.created, 1)
	assert.Same(t, f.created[0], f.ref.Load())
	assert.Len(t, f.rewatches, 1)
	assert.Equal(t, int32(0), f.notifier.count.Load())
}

func TestRunLoop(t *testing.T) {
	f := newFixture()
	th := f.throttler(Options{Interval: 10 * time.Millisecond})

	th.Start(context.Background())
	th.Start(context.Background())
	defer th.Stop()

	f.modify("/docs/a.rst")
	require.Eventually(t, func() bool {
		return f.notifier.count.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, [][]string{{"/docs/a.rst"}}, f.current.Calls())

	th.Stop()
	th.Stop()

	// Nothing is drained once stopped.
	f.modify("/docs/b.rst")
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.pending.Len())
}
