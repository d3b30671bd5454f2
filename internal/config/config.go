// Package config models the engine's configuration surface (spec §6):
// every setting is optional and has a documented default, following the
// teacher's nested-struct-of-defaults convention.
package config

import "fmt"

// Config is the full configuration surface recognized by the engine.
type Config struct {
	Collection  Collection
	Timeouts    Timeouts
	Retry       Retry
	Concurrency Concurrency
	Index       Index
	Cache       Cache
}

// Collection controls the Adaptive Collection Loop (C5).
type Collection struct {
	MinIterations int
	MaxIterations int
	StableWindow  int
}

// Timeouts controls per-iteration, per-request, and overall deadlines.
type Timeouts struct {
	PerIterationMs     int
	AnalyzerRequestMs  int
	OverallMs          int
}

// Retry controls the C4 backoff policy.
type Retry struct {
	MaxRetries     int
	BackoffInitMs  int
	BackoffMaxMs   int
	BackoffJitter  float64
}

// Concurrency controls how many branches and Analyzer calls run at once.
type Concurrency struct {
	BranchParallelism   int
	AnalyzerConcurrency int
}

// Index controls the Repository Indexer (C1).
type Index struct {
	FileSizeCapBytes  int64
	SnippetGroupMin   int
	SnippetGroupMax   int
}

// Cache controls the C4 process-local cache tier.
type Cache struct {
	CapacityEntries         int
	TTLSecondsComprehensive int
	TTLSecondsGapFill       int
}

// Default returns the engine's documented defaults (spec §6).
func Default() *Config {
	return &Config{
		Collection: Collection{
			MinIterations: 3,
			MaxIterations: 10,
			StableWindow:  2,
		},
		Timeouts: Timeouts{
			PerIterationMs:    60_000,
			AnalyzerRequestMs: 120_000,
			OverallMs:         300_000,
		},
		Retry: Retry{
			MaxRetries:    5,
			BackoffInitMs: 500,
			BackoffMaxMs:  15_000,
			BackoffJitter: 0.2,
		},
		Concurrency: Concurrency{
			BranchParallelism:   2,
			AnalyzerConcurrency: 2,
		},
		Index: Index{
			FileSizeCapBytes: 1_048_576,
			SnippetGroupMin:  2,
			SnippetGroupMax:  10,
		},
		Cache: Cache{
			CapacityEntries:         50,
			TTLSecondsComprehensive: 300,
			TTLSecondsGapFill:       600,
		},
	}
}

// Validate aggregates every out-of-range field into a single error,
// mirroring the teacher's validator.go "collect everything, fail once"
// style rather than failing fast on the first bad field.
func (c *Config) Validate() error {
	var problems []string

	if c.Collection.MinIterations < 1 {
		problems = append(problems, "collection.min_iterations must be >= 1")
	}
	if c.Collection.MaxIterations < c.Collection.MinIterations {
		problems = append(problems, "collection.max_iterations must be >= min_iterations")
	}
	if c.Collection.StableWindow < 1 {
		problems = append(problems, "collection.stable_window must be >= 1")
	}
	if c.Timeouts.PerIterationMs <= 0 {
		problems = append(problems, "timeouts.per_iteration_ms must be > 0")
	}
	if c.Timeouts.AnalyzerRequestMs <= 0 {
		problems = append(problems, "timeouts.analyzer_request_ms must be > 0")
	}
	if c.Timeouts.OverallMs <= 0 {
		problems = append(problems, "timeouts.overall_ms must be > 0")
	}
	if c.Retry.MaxRetries < 0 {
		problems = append(problems, "retry.max_retries must be >= 0")
	}
	if c.Retry.BackoffInitMs <= 0 {
		problems = append(problems, "retry.backoff_init_ms must be > 0")
	}
	if c.Retry.BackoffMaxMs < c.Retry.BackoffInitMs {
		problems = append(problems, "retry.backoff_max_ms must be >= backoff_init_ms")
	}
	if c.Retry.BackoffJitter < 0 || c.Retry.BackoffJitter > 1 {
		problems = append(problems, "retry.backoff_jitter must be within [0,1]")
	}
	if c.Concurrency.BranchParallelism < 1 {
		problems = append(problems, "concurrency.branch_parallelism must be >= 1")
	}
	if c.Concurrency.AnalyzerConcurrency < 1 {
		problems = append(problems, "concurrency.analyzer_concurrency must be >= 1")
	}
	if c.Index.FileSizeCapBytes <= 0 {
		problems = append(problems, "index.file_size_cap_bytes must be > 0")
	}
	if c.Index.SnippetGroupMin < 1 || c.Index.SnippetGroupMax < c.Index.SnippetGroupMin {
		problems = append(problems, "index.snippet_group_min/max must satisfy 1 <= min <= max")
	}
	if c.Cache.CapacityEntries < 1 {
		problems = append(problems, "cache.capacity_entries must be >= 1")
	}
	if c.Cache.TTLSecondsComprehensive <= 0 || c.Cache.TTLSecondsGapFill <= 0 {
		problems = append(problems, "cache.ttl_seconds_* must be > 0")
	}

	if len(problems) == 0 {
		return nil
	}
	msg := problems[0]
	for _, p := range problems[1:] {
		msg += "; " + p
	}
	return fmt.Errorf("invalid configuration: %s", msg)
}
