package indexer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alpsla/reviewengine/internal/config"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func testIndexConfig() config.Index {
	return config.Default().Index
}

func TestBuildIndexSkipsDenylistedDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/index.ts", "export function main() {\n  return 1\n}\n")
	writeFile(t, root, "node_modules/lib/index.js", "module.exports = 1\n")

	idx, err := BuildIndex(root, testIndexConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !idx.HasFile("src/index.ts") {
		t.Error("expected src/index.ts to be indexed")
	}
	if idx.HasFile("node_modules/lib/index.js") {
		t.Error("expected node_modules to be excluded")
	}
}

func TestBuildIndexFailsOnUnreadableRoot(t *testing.T) {
	_, err := BuildIndex(filepath.Join(t.TempDir(), "does-not-exist"), testIndexConfig())
	if err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestLookupSnippetDeterministicTieBreak(t *testing.T) {
	root := t.TempDir()
	body := "line a\nline b\nreturn cache.get(key)\nline d\n"
	writeFile(t, root, "src/lru.ts", body)
	writeFile(t, root, "src/cache.ts", body)

	idx, err := BuildIndex(root, testIndexConfig())
	if err != nil {
		t.Fatal(err)
	}

	matches := LookupSnippet(idx, "return cache.get(key)")
	if len(matches) < 2 {
		t.Fatalf("expected at least 2 matches, got %d", len(matches))
	}
	if matches[0].File != "src/cache.ts" {
		t.Errorf("expected src/cache.ts first (shorter path tie-break), got %s", matches[0].File)
	}

	again := LookupSnippet(idx, "return cache.get(key)")
	if matches[0] != again[0] || matches[1] != again[1] {
		t.Errorf("expected deterministic ordering across calls")
	}
}

func TestLookupSnippetExactVsNormalized(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "source/retry.ts", "async function retry() {\n  await fn();\n  return true;\n}\n")
	idx, err := BuildIndex(root, testIndexConfig())
	if err != nil {
		t.Fatal(err)
	}

	exact := LookupSnippet(idx, "  await fn();\n  return true;")
	if len(exact) == 0 || exact[0].MatchScore != 100 {
		t.Fatalf("expected score 100 for byte-exact match, got %+v", exact)
	}

	normalized := LookupSnippet(idx, "await   fn();\nreturn true;")
	if len(normalized) == 0 || normalized[0].MatchScore != 80 {
		t.Fatalf("expected score 80 for whitespace-normalized match, got %+v", normalized)
	}
}

func TestExtractLinesOutOfRange(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	idx, err := BuildIndex(root, testIndexConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ExtractLines(idx, "a.go", 50, 2); err == nil {
		t.Fatal("expected ErrNotFound for out-of-range line")
	}
}
