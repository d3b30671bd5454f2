package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
}

func TestValidateAggregatesProblems(t *testing.T) {
	cfg := Default()
	cfg.Collection.MinIterations = 0
	cfg.Collection.MaxIterations = -1
	cfg.Retry.BackoffJitter = 2

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadFallsBackToDefaultWhenNoFilePresent(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Collection.MinIterations != 3 {
		t.Errorf("expected default min_iterations 3, got %d", cfg.Collection.MinIterations)
	}
}

func TestLoadKDLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	content := `
collection {
    min_iterations 4
    max_iterations 8
}
retry {
    max_retries 2
}
`
	if err := os.WriteFile(filepath.Join(dir, KDLFileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Collection.MinIterations != 4 || cfg.Collection.MaxIterations != 8 {
		t.Errorf("expected overridden iteration bounds, got %+v", cfg.Collection)
	}
	if cfg.Retry.MaxRetries != 2 {
		t.Errorf("expected overridden max_retries, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Concurrency.BranchParallelism != 2 {
		t.Errorf("expected untouched default branch_parallelism, got %d", cfg.Concurrency.BranchParallelism)
	}
}
