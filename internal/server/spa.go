package server

import (
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/ashita-ai/archdoc/internal/model"
)

// spaHandler serves the embedded report UI and falls back to index.html for
// client-side routes.
type spaHandler struct {
	fs     http.FileSystem
	static http.Handler
}

// newSPAHandler serves fsys as a single-page app. index.html is never cached.
func newSPAHandler(fsys fs.FS) http.Handler {
	httpFS := http.FS(fsys)
	return &spaHandler{
		fs:     httpFS,
		static: http.FileServer(httpFS),
	}
}

func (h *spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	urlPath := path.Clean(r.URL.Path)
	if urlPath == "." {
		urlPath = "/"
	}

	// Unmatched API paths get a JSON 404, not the app shell.
	if isAPIPath(urlPath) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "endpoint not found")
		return
	}

	if urlPath != "/" {
		f, err := h.fs.Open(urlPath)
		if err == nil {
			_ = f.Close()
			setCacheHeaders(w, urlPath)
			h.static.ServeHTTP(w, r)
			return
		}
	}

	r.URL.Path = "/"
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	h.static.ServeHTTP(w, r)
}

// isAPIPath reports whether p belongs to an API prefix.
func isAPIPath(p string) bool {
	return strings.HasPrefix(p, "/v1/") ||
		strings.HasPrefix(p, "/auth/") ||
		p == "/mcp" || strings.HasPrefix(p, "/mcp/")
}

// setCacheHeaders sets cache-control headers by path. Files under assets/
// carry content hashes in their names.
func setCacheHeaders(w http.ResponseWriter, urlPath string) {
	if strings.HasPrefix(urlPath, "/assets/") {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
}
