package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// TOMLFileName is a secondary, legacy config format probed when no KDL
// file is present, mirroring the teacher's secondary-format-probe
// pattern in build_artifact_detector.go (which reads Cargo.toml /
// pyproject.toml with the same library for the same "best effort,
// tolerate absence" reason).
const TOMLFileName = "reviewengine.toml"

type tomlConfig struct {
	Collection struct {
		MinIterations int `toml:"min_iterations"`
		MaxIterations int `toml:"max_iterations"`
		StableWindow  int `toml:"stable_window"`
	} `toml:"collection"`
	Timeouts struct {
		PerIterationMs    int `toml:"per_iteration_ms"`
		AnalyzerRequestMs int `toml:"analyzer_request_ms"`
		OverallMs         int `toml:"overall_ms"`
	} `toml:"timeouts"`
	Retry struct {
		MaxRetries    int     `toml:"max_retries"`
		BackoffInitMs int     `toml:"backoff_init_ms"`
		BackoffMaxMs  int     `toml:"backoff_max_ms"`
		BackoffJitter float64 `toml:"backoff_jitter"`
	} `toml:"retry"`
	Concurrency struct {
		BranchParallelism   int `toml:"branch_parallelism"`
		AnalyzerConcurrency int `toml:"analyzer_concurrency"`
	} `toml:"concurrency"`
}

// LoadTOML loads "reviewengine.toml" from projectRoot if it exists,
// applying only the fields it sets on top of Default(). A missing file
// returns (nil, nil).
func LoadTOML(projectRoot string) (*Config, error) {
	path := filepath.Join(projectRoot, TOMLFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", TOMLFileName, err)
	}

	var parsed tomlConfig
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse %s: %w", TOMLFileName, err)
	}

	cfg := Default()
	if parsed.Collection.MinIterations != 0 {
		cfg.Collection.MinIterations = parsed.Collection.MinIterations
	}
	if parsed.Collection.MaxIterations != 0 {
		cfg.Collection.MaxIterations = parsed.Collection.MaxIterations
	}
	if parsed.Collection.StableWindow != 0 {
		cfg.Collection.StableWindow = parsed.Collection.StableWindow
	}
	if parsed.Timeouts.PerIterationMs != 0 {
		cfg.Timeouts.PerIterationMs = parsed.Timeouts.PerIterationMs
	}
	if parsed.Timeouts.AnalyzerRequestMs != 0 {
		cfg.Timeouts.AnalyzerRequestMs = parsed.Timeouts.AnalyzerRequestMs
	}
	if parsed.Timeouts.OverallMs != 0 {
		cfg.Timeouts.OverallMs = parsed.Timeouts.OverallMs
	}
	if parsed.Retry.MaxRetries != 0 {
		cfg.Retry.MaxRetries = parsed.Retry.MaxRetries
	}
	if parsed.Retry.BackoffInitMs != 0 {
		cfg.Retry.BackoffInitMs = parsed.Retry.BackoffInitMs
	}
	if parsed.Retry.BackoffMaxMs != 0 {
		cfg.Retry.BackoffMaxMs = parsed.Retry.BackoffMaxMs
	}
	if parsed.Retry.BackoffJitter != 0 {
		cfg.Retry.BackoffJitter = parsed.Retry.BackoffJitter
	}
	if parsed.Concurrency.BranchParallelism != 0 {
		cfg.Concurrency.BranchParallelism = parsed.Concurrency.BranchParallelism
	}
	if parsed.Concurrency.AnalyzerConcurrency != 0 {
		cfg.Concurrency.AnalyzerConcurrency = parsed.Concurrency.AnalyzerConcurrency
	}

	return cfg, nil
}

// Load resolves configuration for projectRoot: KDL takes precedence,
// then the legacy TOML file, then Default().
func Load(projectRoot string) (*Config, error) {
	if cfg, err := LoadKDL(projectRoot); err != nil {
		return nil, err
	} else if cfg != nil {
		return cfg, nil
	}

	if cfg, err := LoadTOML(projectRoot); err != nil {
		return nil, err
	} else if cfg != nil {
		return cfg, nil
	}

	return Default(), nil
}
