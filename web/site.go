// Package web serves the prebuilt marketing site from disk.
//
// The site is built separately; when STATIC_DIR is unset the server only
// exposes the API.
package web

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
)

// SiteHandler returns an http.Handler that serves files from dir. Paths that
// don't match a file fall back to index.html so client-side routes resolve.
func SiteHandler(dir string) (http.Handler, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat static dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("static dir %s is not a directory", dir)
	}

	siteFS := os.DirFS(dir)
	fileServer := http.FileServer(http.FS(siteFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			name = "index.html"
		}

		if f, err := siteFS.Open(name); err == nil {
			if closeErr := f.Close(); closeErr != nil {
				slog.Debug("web: failed to close static file", "path", name, "error", closeErr)
			}
			fileServer.ServeHTTP(w, r)
			return
		} else if !errors.Is(err, fs.ErrNotExist) {
			slog.Debug("web: failed to open static file", "path", name, "error", err)
		}

		// Not found: serve index.html for client-side routing.
		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	}), nil
}
