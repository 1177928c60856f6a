//go:build !ui

// Package ui embeds the built report viewer. Without the ui build tag
// nothing is embedded and the API runs headless.
package ui

import "io/fs"

// DistFS reports no viewer; archdoc then serves only the API and /mcp.
func DistFS() (fs.FS, error) {
	return nil, nil
}
