package server

import (
	"errors"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/conneroisu/docserve/internal/watcher"
)

// ErrOutsideRoot is returned for request paths that leave the output tree.
var ErrOutsideRoot = errors.New("path escapes the output root")

// Resolve maps a request path onto a file below root. Paths with ".."
// segments are rejected outright; symlinks are followed but the target must
// stay inside root. The error wraps fs.ErrNotExist when nothing is there.
func Resolve(root, requestPath string) (string, error) {
	if strings.ContainsRune(requestPath, 0) || strings.Contains(requestPath, "\\") {
		return "", ErrOutsideRoot
	}
	for _, segment := range strings.Split(requestPath, "/") {
		if segment == ".." {
			return "", ErrOutsideRoot
		}
	}

	cleaned := path.Clean("/" + requestPath)
	full := filepath.Join(root, filepath.FromSlash(cleaned))
	if !watcher.Within(full, root) {
		return "", ErrOutsideRoot
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(full)
	if err != nil {
		return "", err
	}
	if !watcher.Within(real, realRoot) {
		return "", ErrOutsideRoot
	}
	return real, nil
}

// notFound reports whether err should be answered with 404.
func notFound(err error) bool {
	return errors.Is(err, ErrOutsideRoot) ||
		errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, syscall.ENOTDIR)
}
