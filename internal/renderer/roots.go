package renderer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/conneroisu/docserve/internal/watcher"
)

// Resolver maps an auxiliary root identifier from the renderer configuration
// to a directory on disk.
type Resolver interface {
	Resolve(id string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(id string) (string, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(id string) (string, error) {
	return f(id)
}

// DirResolver resolves identifiers as paths relative to Base.
type DirResolver struct {
	Base string
}

// Resolve implements Resolver. The path must exist.
func (d DirResolver) Resolve(id string) (string, error) {
	path := id
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.Base, path)
	}
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}

// Chain tries each resolver in order and returns the first success.
type Chain []Resolver

// Resolve implements Resolver.
func (c Chain) Resolve(id string) (string, error) {
	var lastErr error
	for _, r := range c {
		path, err := r.Resolve(id)
		if err == nil {
			return path, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no resolver for %q", id)
	}
	return "", lastErr
}

// WatchRoots derives the roots to watch for opts: the renderer configuration
// file, the source tree, and every auxiliary root the resolver can find.
// Unresolvable auxiliary roots are reported through skip and left out.
func WatchRoots(opts Options, resolver Resolver, skip func(id string, err error)) []watcher.Root {
	var roots []watcher.Root
	if path := opts.ConfigPath(); path != "" {
		roots = append(roots, watcher.Root{Path: path})
	}
	if opts.SourceDir != "" {
		roots = append(roots, watcher.Root{Path: opts.SourceDir, Recursive: true})
	}

	for _, id := range opts.Config.Watch {
		if resolver == nil {
			break
		}
		path, err := resolver.Resolve(id)
		if err != nil {
			if skip != nil {
				skip(id, err)
			}
			continue
		}
		roots = append(roots, watcher.Root{Path: path, Recursive: true})
	}

	return dedupeRoots(roots)
}

// dedupeRoots drops repeated roots and roots already covered by a recursive
// root, keeping the first occurrence order.
func dedupeRoots(roots []watcher.Root) []watcher.Root {
	seen := make(map[string]bool, len(roots))
	result := make([]watcher.Root, 0, len(roots))
	for _, root := range roots {
		path := filepath.Clean(root.Path)
		if recursive, ok := seen[path]; ok && (recursive || !root.Recursive) {
			continue
		}
		covered := false
		for _, other := range roots {
			otherPath := filepath.Clean(other.Path)
			if other.Recursive && otherPath != path && watcher.Within(path, otherPath) {
				covered = true
				break
			}
		}
		if covered {
			continue
		}
		seen[path] = root.Recursive
		result = append(result, watcher.Root{Path: path, Recursive: root.Recursive})
	}
	return result
}
