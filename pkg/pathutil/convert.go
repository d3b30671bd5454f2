// Package pathutil converts between absolute and relative paths.
//
// The indexer keys files by paths relative to the checkout root. The
// orchestrator uses ToRelative to rewrite issue locations against that
// root before the two branches are compared.
package pathutil

import (
	"path/filepath"
	"strings"
)

// ToRelative converts an absolute path to relative based on a root
// directory. Falls back to the original path if conversion fails or
// the path is already relative.
//
// Examples:
//   - ToRelative("/repo/src/main.go", "/repo") → "src/main.go"
//   - ToRelative("/other/file.go", "/repo") → "/other/file.go" (outside root)
//   - ToRelative("src/main.go", "/repo") → "src/main.go" (already relative)
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" {
		return absPath
	}
	if !filepath.IsAbs(absPath) {
		return absPath
	}

	absPath = filepath.Clean(absPath)
	rootDir = filepath.Clean(rootDir)

	relPath, err := filepath.Rel(rootDir, absPath)
	if err != nil {
		return absPath
	}
	if strings.HasPrefix(relPath, "..") {
		return absPath
	}
	return relPath
}
