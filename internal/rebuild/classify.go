// Package rebuild batches watcher changes, classifies each batch into a
// rebuild mode, drives the renderer and announces successful builds.
package rebuild

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/conneroisu/docserve/internal/renderer"
	"github.com/conneroisu/docserve/internal/watcher"
)

// Mode is how much work a batch of changes requires.
type Mode int

const (
	// Selected rebuilds only the changed documentation sources.
	Selected Mode = iota
	// All asks the renderer for a full build.
	All
	// Restart constructs a fresh renderer before a full build.
	Restart
)

// String returns the string representation of the Mode.
func (m Mode) String() string {
	switch m {
	case Selected:
		return "selected"
	case All:
		return "all"
	case Restart:
		return "restart"
	default:
		return "unknown"
	}
}

// Plan is a classified batch.
type Plan struct {
	Mode Mode
	// Files holds the sources to rebuild when Mode is Selected.
	Files []string
}

// Classifier decides the rebuild mode of a batch.
type Classifier struct {
	// ConfigFiles trigger a restart when any of them changes.
	ConfigFiles []string
	// SourceSuffixes identify documentation sources, e.g. ".rst".
	SourceSuffixes []string
	// IgnoreDirs never contribute to a batch.
	IgnoreDirs []string
}

// NewClassifier builds a classifier for the renderer described by opts.
// extraConfig lists further files whose change requires a restart.
func NewClassifier(opts renderer.Options, extraConfig ...string) Classifier {
	var configs []string
	if path := opts.ConfigPath(); path != "" {
		configs = append(configs, path)
	}
	for _, path := range extraConfig {
		if path == "" {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		configs = append(configs, filepath.Clean(path))
	}

	var ignore []string
	for _, dir := range []string{opts.OutputDir, opts.DoctreeDir} {
		if dir != "" {
			ignore = append(ignore, dir)
		}
	}

	return Classifier{
		ConfigFiles:    configs,
		SourceSuffixes: opts.Config.SourceSuffixes,
		IgnoreDirs:     ignore,
	}
}

// Classify returns the plan for batch. ok is false when nothing in the
// batch is relevant.
//
// A change to a configuration file wins. A batch made only of created or
// modified documentation sources is Selected. Anything else, including a
// deleted or moved source, needs a full build.
func (c Classifier) Classify(batch []watcher.Change) (plan Plan, ok bool) {
	var files []string
	seen := make(map[string]struct{})
	selected := true
	restart := false

	for _, change := range batch {
		if c.ignored(change.Path) {
			continue
		}
		ok = true

		if c.isConfig(change.Path) {
			restart = true
			continue
		}

		if !c.isSource(change.Path) || change.Kind == watcher.EventDeleted || change.Kind == watcher.EventMoved {
			selected = false
			continue
		}
		if _, dup := seen[change.Path]; !dup {
			seen[change.Path] = struct{}{}
			files = append(files, change.Path)
		}
	}

	switch {
	case !ok:
		return Plan{}, false
	case restart:
		return Plan{Mode: Restart}, true
	case selected && len(files) > 0:
		sort.Strings(files)
		return Plan{Mode: Selected, Files: files}, true
	default:
		return Plan{Mode: All}, true
	}
}

func (c Classifier) ignored(path string) bool {
	if watcher.IsBackupFile(path) {
		return true
	}
	for _, dir := range c.IgnoreDirs {
		if watcher.Within(path, dir) {
			return true
		}
	}
	return false
}

func (c Classifier) isConfig(path string) bool {
	for _, file := range c.ConfigFiles {
		if filepath.Clean(path) == file {
			return true
		}
	}
	return false
}

func (c Classifier) isSource(path string) bool {
	name := filepath.Base(path)
	for _, suffix := range c.SourceSuffixes {
		if suffix != "" && strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
