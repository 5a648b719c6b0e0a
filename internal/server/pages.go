package server

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/a-h/templ"
)

// entry is one row of a directory listing.
type entry struct {
	Name  string
	IsDir bool
	Size  int64
}

const pageStyle = `body{font-family:system-ui,sans-serif;margin:2rem auto;max-width:48rem;color:#222}` +
	`a{color:#0b63b6;text-decoration:none}a:hover{text-decoration:underline}` +
	`li{padding:.15rem 0}.size{color:#777;margin-left:.5rem}code{background:#f3f3f3;padding:0 .25rem}`

// layout wraps body in a minimal document with a head, so the reload client
// can be injected into error and listing pages too.
func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w,
			"<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n<style>%s</style>\n</head>\n<body>\n",
			templ.EscapeString(title), pageStyle); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, "</body>\n</html>\n")
		return err
	})
}

// notFoundPage is shown for missing files.
func notFoundPage(requestPath string) templ.Component {
	return layout("Not found", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			"<h1>Not found</h1>\n<p><code>%s</code> is not in the output tree. "+
				"This page reloads when the next build finishes.</p>\n<p><a href=\"/\">Index</a></p>\n",
			templ.EscapeString(requestPath))
		return err
	}))
}

// listingPage shows a directory that has no index.html.
func listingPage(requestPath string, entries []entry) templ.Component {
	base := requestPath
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	title := "Index of " + base

	return layout(title, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, "<h1>%s</h1>\n<ul>\n", templ.EscapeString(title)); err != nil {
			return err
		}
		if base != "/" {
			parent := path.Dir(strings.TrimSuffix(base, "/"))
			if !strings.HasSuffix(parent, "/") {
				parent += "/"
			}
			if _, err := fmt.Fprintf(w, "<li><a href=\"%s\">../</a></li>\n", templ.EscapeString(parent)); err != nil {
				return err
			}
		}
		for _, e := range entries {
			name := e.Name
			if e.IsDir {
				name += "/"
			}
			href := base + url.PathEscape(e.Name)
			if e.IsDir {
				href += "/"
			}
			size := ""
			if !e.IsDir {
				size = fmt.Sprintf("<span class=\"size\">%d bytes</span>", e.Size)
			}
			if _, err := fmt.Fprintf(w, "<li><a href=\"%s\">%s</a>%s</li>\n",
				templ.EscapeString(href), templ.EscapeString(name), size); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</ul>\n")
		return err
	}))
}

// readEntries lists dir with directories first, then by name.
func readEntries(dir string) ([]entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	entries := make([]entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		e := entry{Name: de.Name(), IsDir: de.IsDir()}
		if info, err := de.Info(); err == nil && !e.IsDir {
			e.Size = info.Size()
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}
