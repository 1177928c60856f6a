//go:build ui

// Package ui embeds the built report viewer. Build the frontend into
// ui/dist and compile with -tags ui to serve it at /.
package ui

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed all:dist
var distFS embed.FS

// DistFS returns the viewer rooted at dist/. It fails when the embedded
// build has no index.html, since the SPA fallback would serve nothing.
func DistFS() (fs.FS, error) {
	sub, err := fs.Sub(distFS, "dist")
	if err != nil {
		return nil, err
	}
	if _, err := fs.Stat(sub, "index.html"); err != nil {
		return nil, fmt.Errorf("ui: embedded viewer build is incomplete: %w", err)
	}
	return sub, nil
}
