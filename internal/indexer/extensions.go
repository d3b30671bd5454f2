package indexer

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// textExtensions is the allowlist of source-code and common-config
// extensions considered for indexing (spec §4.1 "source code languages
// plus common config"). Adapted from the teacher's binary-extension
// database in indexing/binary_detector.go, inverted into an allowlist.
var textExtensions = map[string]string{
	".go":     "go",
	".js":     "javascript",
	".jsx":    "javascript",
	".mjs":    "javascript",
	".ts":     "typescript",
	".tsx":    "typescript",
	".py":     "python",
	".rb":     "ruby",
	".java":   "java",
	".kt":     "kotlin",
	".cs":     "csharp",
	".c":      "c",
	".h":      "c",
	".cpp":    "cpp",
	".cc":     "cpp",
	".hpp":    "cpp",
	".rs":     "rust",
	".php":    "php",
	".swift":  "swift",
	".scala":  "scala",
	".sh":     "shell",
	".bash":   "shell",
	".sql":    "sql",
	".proto":  "protobuf",
	".graphql": "graphql",
	".json":   "json",
	".yaml":   "yaml",
	".yml":    "yaml",
	".toml":   "toml",
	".kdl":    "kdl",
	".md":     "markdown",
	".html":   "html",
	".css":    "css",
	".vue":    "vue",
}

// denylistGlobs excludes vendored-dependency caches and build outputs,
// matched against the path relative to the repository root with
// doublestar, the same library and "**/dir/**" pattern style the
// teacher's indexing/watcher.go uses for its own exclusion rules.
var denylistGlobs = []string{
	"**/node_modules/**",
	"**/vendor/**",
	"**/.git/**",
	"**/dist/**",
	"**/build/**",
	"**/out/**",
	"**/target/**",
	"**/.next/**",
	"**/.nuxt/**",
	"**/venv/**",
	"**/.venv/**",
	"**/__pycache__/**",
	"**/bin/**",
	"**/obj/**",
	"**/.idea/**",
	"**/.vscode/**",
	"**/coverage/**",
}

// languageHint returns the language name the teacher's extension table
// associates with a file, or "" if unknown.
func languageHint(path string) string {
	return textExtensions[strings.ToLower(filepath.Ext(path))]
}

// isIndexable reports whether relPath should be scanned at all: it must
// be an allowlisted extension and must not fall under a denylist glob.
func isIndexable(relPath string) bool {
	ext := strings.ToLower(filepath.Ext(relPath))
	if _, ok := textExtensions[ext]; !ok {
		return false
	}
	normalized := filepath.ToSlash(relPath)
	for _, pattern := range denylistGlobs {
		if ok, _ := doublestar.Match(pattern, normalized); ok {
			return false
		}
	}
	return true
}
