// Package renderertest provides an in-memory renderer for tests.
package renderertest

import (
	"context"
	"sync"

	"github.com/conneroisu/docserve/internal/renderer"
)

// Recorder is a Renderer that records every build call.
type Recorder struct {
	opts renderer.Options

	mu    sync.Mutex
	calls [][]string
	err   error

	// OnBuild, when set, runs inside Build before the call is recorded.
	OnBuild func(ctx context.Context, files []string) error
}

// New returns a recorder reporting opts.
func New(opts renderer.Options) *Recorder {
	return &Recorder{opts: opts}
}

// Factory returns a renderer.Factory that hands out recorders and reports
// each one to created.
func Factory(created func(*Recorder)) renderer.Factory {
	return func(opts renderer.Options) (renderer.Renderer, error) {
		r := New(opts)
		if created != nil {
			created(r)
		}
		return r, nil
	}
}

// Build implements renderer.Renderer. A nil entry is recorded for a full
// build.
func (r *Recorder) Build(ctx context.Context, files []string) error {
	if r.OnBuild != nil {
		if err := r.OnBuild(ctx, files); err != nil {
			r.record(files)
			return err
		}
	}

	r.record(files)

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) record(files []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if files != nil {
		files = append([]string{}, files...)
	}
	r.calls = append(r.calls, files)
}

// Options implements renderer.Renderer.
func (r *Recorder) Options() renderer.Options {
	return r.opts
}

// Fail makes subsequent builds return err; nil restores success.
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Calls returns the recorded build calls.
func (r *Recorder) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}
