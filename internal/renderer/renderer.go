// Package renderer defines the documentation renderer the rebuild loop
// drives, and a command-line implementation that runs an external builder
// such as sphinx-build.
//
// A renderer is constructed once from its configuration and reused for every
// build. When the configuration changes the rebuild loop constructs a fresh
// renderer through a Factory and swaps it in with a Ref.
package renderer

import (
	"context"
	"path/filepath"
	"sync/atomic"

	"github.com/conneroisu/docserve/internal/config"
)

// Renderer turns documentation sources into an output tree on disk.
type Renderer interface {
	// Build renders files, or everything that is out of date when files is
	// empty. It blocks until the output tree is written.
	Build(ctx context.Context, files []string) error

	// Options returns the settings the renderer was constructed with.
	Options() Options
}

// Options are the attributes needed to construct an equivalent renderer.
type Options struct {
	SourceDir  string
	ConfigDir  string
	OutputDir  string
	DoctreeDir string
	Builder    string
	Parallel   int

	// Config is the typed renderer configuration the renderer was built from.
	Config config.RendererConfig
}

// OptionsFrom derives renderer options from a loaded configuration section.
func OptionsFrom(cfg config.RendererConfig) Options {
	return Options{
		SourceDir:  cfg.SourceDir,
		ConfigDir:  cfg.ConfigDir,
		OutputDir:  cfg.OutputDir,
		DoctreeDir: cfg.DoctreeDir,
		Builder:    cfg.Builder,
		Parallel:   cfg.Parallel,
		Config:     cfg,
	}
}

// WithConfig returns a copy of o that keeps the paths, builder and
// parallelism but takes every other setting from cfg.
func (o Options) WithConfig(cfg config.RendererConfig) Options {
	cfg.SourceDir = o.SourceDir
	cfg.ConfigDir = o.ConfigDir
	cfg.OutputDir = o.OutputDir
	cfg.DoctreeDir = o.DoctreeDir
	cfg.Builder = o.Builder
	cfg.Parallel = o.Parallel
	o.Config = cfg
	return o
}

// ConfigPath is the absolute path of the renderer configuration file, or
// empty when none is configured.
func (o Options) ConfigPath() string {
	file := o.Config.ConfigFile
	if file == "" {
		return ""
	}
	if filepath.IsAbs(file) {
		return filepath.Clean(file)
	}
	return filepath.Join(o.ConfigDir, file)
}

// Factory constructs a renderer.
type Factory func(opts Options) (Renderer, error)

// Ref holds the current renderer. Readers see either the previous or the
// next renderer, never a partial value.
type Ref struct {
	current atomic.Pointer[entry]
}

type entry struct {
	r Renderer
}

// NewRef returns a Ref holding r.
func NewRef(r Renderer) *Ref {
	ref := &Ref{}
	ref.Store(r)
	return ref
}

// Load returns the current renderer, or nil when none is stored.
func (ref *Ref) Load() Renderer {
	e := ref.current.Load()
	if e == nil {
		return nil
	}
	return e.r
}

// Store installs r as the current renderer.
func (ref *Ref) Store(r Renderer) {
	ref.current.Store(&entry{r: r})
}
