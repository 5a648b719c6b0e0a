package renderer

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/docserve/internal/config"
	docerrors "github.com/conneroisu/docserve/internal/errors"
	"github.com/conneroisu/docserve/internal/watcher"
)

func testOptions(t *testing.T, command ...string) Options {
	t.Helper()
	root := t.TempDir()
	return OptionsFrom(config.RendererConfig{
		SourceDir:  root,
		ConfigDir:  root,
		OutputDir:  filepath.Join(root, "_build", "html"),
		DoctreeDir: filepath.Join(root, "_build", "doctrees"),
		Builder:    "html",
		Parallel:   2,
		Command:    command,
		ConfigFile: "conf.py",
	})
}

func TestArgsExpandsPlaceholders(t *testing.T) {
	opts := testOptions(t, config.DefaultCommand...)
	r, err := NewCommandRenderer(opts, nil)
	require.NoError(t, err)

	expected := []string{
		"sphinx-build",
		"-b", "html",
		"-d", opts.DoctreeDir,
		"-c", opts.ConfigDir,
		"-j", "2",
		opts.SourceDir, opts.OutputDir,
	}
	assert.Equal(t, expected, r.Args(nil))
	assert.Equal(t, append(expected, "/docs/a.rst", "/docs/b.rst"), r.Args([]string{"/docs/a.rst", "/docs/b.rst"}))
}

func TestArgsFilesPlaceholder(t *testing.T) {
	opts := testOptions(t, "build", "{files}", "--out={output}")
	r, err := NewCommandRenderer(opts, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"build", "a.rst", "--out=" + opts.OutputDir}, r.Args([]string{"a.rst"}))
	assert.Equal(t, []string{"build", "--out=" + opts.OutputDir}, r.Args(nil))
}

func TestNewCommandRendererValidation(t *testing.T) {
	tests := []struct {
		name    string
		command []string
	}{
		{name: "empty", command: nil},
		{name: "blank program", command: []string{" "}},
		{name: "files as program", command: []string{"{files}"}},
		{name: "null byte", command: []string{"sphinx-build", "a\x00b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCommandRenderer(testOptions(t, tt.command...), nil)
			require.Error(t, err)
			assert.True(t, docerrors.IsType(err, docerrors.ErrorTypeConfig))
		})
	}
}

func TestCommandRendererBuild(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	opts := testOptions(t, "sh", "-c", "mkdir -p {output} && echo built > {output}/index.html")
	r, err := NewCommandRenderer(opts, nil)
	require.NoError(t, err)

	require.NoError(t, r.Build(context.Background(), nil))
	content, err := os.ReadFile(filepath.Join(opts.OutputDir, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "built\n", string(content))
}

func TestCommandRendererBuildFailure(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	opts := testOptions(t, "sh", "-c", "echo broken markup >&2; exit 3")
	r, err := NewCommandRenderer(opts, nil)
	require.NoError(t, err)

	err = r.Build(context.Background(), nil)
	require.Error(t, err)

	var docErr *docerrors.DocError
	require.True(t, errors.As(err, &docErr))
	assert.Equal(t, "BUILD_FAILED", docErr.Code)
	assert.Equal(t, "broken markup", docErr.Context["output"])
	assert.True(t, docerrors.IsRecoverable(err))
}

func TestCommandRendererTimeout(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	opts := testOptions(t, "sleep", "5")
	opts.Config.Timeout = 50 * time.Millisecond
	r, err := NewCommandRenderer(opts, nil)
	require.NoError(t, err)

	start := time.Now()
	err = r.Build(context.Background(), nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)

	var docErr *docerrors.DocError
	require.True(t, errors.As(err, &docErr))
	assert.Equal(t, "BUILD_TIMEOUT", docErr.Code)
}

func TestWithConfigKeepsIdentity(t *testing.T) {
	opts := testOptions(t, config.DefaultCommand...)

	next := opts.WithConfig(config.RendererConfig{
		SourceDir: "/elsewhere",
		Builder:   "dirhtml",
		Parallel:  8,
		Command:   []string{"make", "html"},
		Watch:     []string{"theme"},
	})

	assert.Equal(t, opts.SourceDir, next.SourceDir)
	assert.Equal(t, "html", next.Builder)
	assert.Equal(t, 2, next.Parallel)
	assert.Equal(t, opts.SourceDir, next.Config.SourceDir)
	assert.Equal(t, "html", next.Config.Builder)
	assert.Equal(t, []string{"make", "html"}, next.Config.Command)
	assert.Equal(t, []string{"theme"}, next.Config.Watch)
}

func TestWatchRoots(t *testing.T) {
	project := t.TempDir()
	theme := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(project, "docs", "_static"), 0755))

	opts := OptionsFrom(config.RendererConfig{
		SourceDir:  filepath.Join(project, "docs"),
		ConfigDir:  project,
		ConfigFile: "conf.py",
		Watch:      []string{theme, "docs/_static", "missing"},
	})

	var skipped []string
	roots := WatchRoots(opts, DirResolver{Base: project}, func(id string, err error) {
		skipped = append(skipped, id)
	})

	assert.Equal(t, []watcher.Root{
		{Path: filepath.Join(project, "conf.py")},
		{Path: filepath.Join(project, "docs"), Recursive: true},
		{Path: theme, Recursive: true},
	}, roots)
	assert.Equal(t, []string{"missing"}, skipped)
}

func TestChainResolver(t *testing.T) {
	dir := t.TempDir()
	chain := Chain{
		ResolverFunc(func(id string) (string, error) {
			if id == "sphinx_rtd_theme" {
				return dir, nil
			}
			return "", errors.New("unknown package")
		}),
		DirResolver{Base: dir},
	}

	path, err := chain.Resolve("sphinx_rtd_theme")
	require.NoError(t, err)
	assert.Equal(t, dir, path)

	_, err = chain.Resolve("nope")
	assert.Error(t, err)

	_, err = Chain{}.Resolve("x")
	assert.Error(t, err)
}

type namedRenderer struct{ name string }

func (n *namedRenderer) Build(context.Context, []string) error { return nil }
func (n *namedRenderer) Options() Options                      { return Options{Builder: n.name} }

func TestRefSwap(t *testing.T) {
	ref := &Ref{}
	assert.Nil(t, ref.Load())

	ref.Store(&namedRenderer{name: "old"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				name := ref.Load().Options().Builder
				if name != "old" && name != "new" {
					t.Errorf("unexpected renderer %q", name)
					return
				}
			}
		}()
	}
	ref.Store(&namedRenderer{name: "new"})
	wg.Wait()

	assert.Equal(t, "new", NewRef(&namedRenderer{name: "new"}).Load().Options().Builder)
}
