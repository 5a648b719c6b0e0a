//go:build property

package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/docserve/internal/watcher"
)

// TestResolveProperties checks that no request path resolves outside the
// output root.
func TestResolveProperties(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "html")
	if err := os.MkdirAll(filepath.Join(root, "guide"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"index.html", "guide/intro.html"} {
		if err := os.WriteFile(filepath.Join(root, f), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("s"), 0644); err != nil {
		t.Fatal(err)
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatal(err)
	}

	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(99)
	parameters.MinSuccessfulTests = 300

	properties := gopter.NewProperties(parameters)

	segments := []string{"", ".", "..", "guide", "index.html", "intro.html", "secret.txt", "%2e%2e", "html"}
	pathGen := gen.SliceOfN(6, gen.IntRange(0, len(segments)-1)).Map(func(idx []int) string {
		parts := make([]string, len(idx))
		for i, n := range idx {
			parts[i] = segments[n]
		}
		return "/" + strings.Join(parts, "/")
	})

	// Property: a successful resolution always lands inside the root
	properties.Property("resolved paths stay inside root", prop.ForAll(
		func(p string) bool {
			resolved, err := Resolve(root, p)
			if err != nil {
				return notFound(err)
			}
			return watcher.Within(resolved, realRoot)
		},
		pathGen,
	))

	// Property: any ".." segment is rejected
	properties.Property("parent segments are rejected", prop.ForAll(
		func(p string) bool {
			_, err := Resolve(root, p+"/../index.html")
			return err == ErrOutsideRoot
		},
		pathGen,
	))

	properties.TestingRun(t)
}
