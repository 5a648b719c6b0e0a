package server

import (
	"bytes"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/a-h/templ"
)

// handleFile serves the output tree. Directories resolve to their
// index.html, HTML files get the reload client, everything else is served
// as is with a MIME type from the suffix table.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	target, err := Resolve(s.opts.Root, r.URL.Path)
	if err != nil {
		s.fileError(w, r, err)
		return
	}

	info, err := os.Stat(target)
	if err != nil {
		s.fileError(w, r, err)
		return
	}

	if info.IsDir() {
		if !strings.HasSuffix(r.URL.Path, "/") {
			dirRedirect(w, r)
			return
		}
		index := filepath.Join(target, "index.html")
		indexInfo, err := os.Stat(index)
		switch {
		case err == nil && !indexInfo.IsDir():
			target, info = index, indexInfo
		case err == nil || errors.Is(err, fs.ErrNotExist):
			s.serveListing(w, r, target)
			return
		default:
			s.fileError(w, r, err)
			return
		}
	}

	if isHTML(target) {
		s.serveHTML(w, r, target)
		return
	}

	f, err := os.Open(target)
	if err != nil {
		s.fileError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", ContentType(target))
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// dirRedirect sends a directory request without its trailing slash to the
// slash form so relative links in the page resolve inside the directory.
func dirRedirect(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Path + "/"
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}

// serveHTML reads the page fresh on every request and injects the client.
func (s *Server) serveHTML(w http.ResponseWriter, r *http.Request, target string) {
	doc, err := os.ReadFile(target)
	if err != nil {
		s.fileError(w, r, err)
		return
	}
	s.writeHTML(w, r, http.StatusOK, doc)
}

func (s *Server) writeHTML(w http.ResponseWriter, r *http.Request, status int, doc []byte) {
	result := s.injector.Inject(doc, "")

	h := w.Header()
	h.Set("Content-Type", "text/html; charset="+result.Charset)
	h.Set("Content-Length", strconv.Itoa(len(result.Body)))
	h.Set("Cache-Control", "no-cache")
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(result.Body); err != nil {
		s.logger.Debug(r.Context(), "Writing page failed", "path", r.URL.Path, "error", err.Error())
	}
}

func (s *Server) serveListing(w http.ResponseWriter, r *http.Request, dir string) {
	entries, err := readEntries(dir)
	if err != nil {
		s.fileError(w, r, err)
		return
	}
	s.renderPage(w, r, http.StatusOK, listingPage(r.URL.Path, entries))
}

// fileError maps file-system errors to status codes: missing or outside the
// root is 404, permission denied is 403, anything else is 500.
func (s *Server) fileError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case notFound(err):
		s.renderPage(w, r, http.StatusNotFound, notFoundPage(r.URL.Path))
	case errors.Is(err, fs.ErrPermission):
		http.Error(w, "Forbidden", http.StatusForbidden)
	default:
		s.logger.Error(r.Context(), err, "Reading output tree failed", "path", r.URL.Path)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, page templ.Component) {
	var buf bytes.Buffer
	if err := page.Render(r.Context(), &buf); err != nil {
		s.logger.Error(r.Context(), err, "Rendering page failed", "path", r.URL.Path)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeHTML(w, r, status, buf.Bytes())
}
