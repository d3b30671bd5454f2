// Package orchestrator implements the Analysis Orchestrator (C7): the
// top-level entry point that checks out base and head, builds one
// RepositoryIndex per checkout, drives the Adaptive Collection Loop for
// both branches, and hands the two final issue sets to the Cross-Branch
// Categorizer. Grounded on the teacher's own top-level scan
// orchestration (internal/mcp tool handlers composing indexer + search +
// git provider into one request/response), generalized from "one
// repository snapshot" to "two branches compared."
package orchestrator

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/alpsla/reviewengine/internal/analyzerclient"
	"github.com/alpsla/reviewengine/internal/cache"
	"github.com/alpsla/reviewengine/internal/categorizer"
	"github.com/alpsla/reviewengine/internal/checkout"
	"github.com/alpsla/reviewengine/internal/collector"
	"github.com/alpsla/reviewengine/internal/config"
	"github.com/alpsla/reviewengine/internal/indexer"
	"github.com/alpsla/reviewengine/internal/rerrors"
	"github.com/alpsla/reviewengine/internal/review"
	"github.com/alpsla/reviewengine/pkg/pathutil"
)

// Options controls one Analyze call (spec §4.7).
type Options struct {
	// Sequential, when true, collects head after base and folds base's
	// finalIssues into head's GapFill do-not-repeat list. When false
	// (the default), both branches collect concurrently and that
	// optimization is skipped (spec §4.7 step 3).
	Sequential bool
}

// Orchestrator wires together a checkout provider, an Analyzer
// transport, and engine configuration to drive end-to-end Analyze
// calls. It holds no per-call state, so one Orchestrator can serve
// concurrent Analyze calls.
type Orchestrator struct {
	checkout  *checkout.Provider
	transport analyzerclient.Transport
	cfg       *config.Config
}

// New builds an Orchestrator. cfg may be nil, in which case
// config.Default() is used.
func New(checkoutProvider *checkout.Provider, transport analyzerclient.Transport, cfg *config.Config) *Orchestrator {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Orchestrator{checkout: checkoutProvider, transport: transport, cfg: cfg}
}

type branchResult struct {
	issues   []*review.Issue
	metadata review.BranchMetadata
	err      error
}

// Analyze is the C7 contract: acquire checkouts for baseRef and
// headRef, index both, run C5 for each, and compare the results via
// C6. On a single branch's Failed outcome it returns a partial
// ComparisonResult with metadata.PartialFailure populated; if both
// branches fail, or if either fails specifically due to cancellation,
// it returns that error instead of a partial result (spec §5:
// "partial ComparisonResults are never emitted on cancellation").
func (o *Orchestrator) Analyze(ctx context.Context, repoURL, baseRef, headRef string, opts Options) (*review.ComparisonResult, error) {
	start := time.Now()

	overall := time.Duration(o.cfg.Timeouts.OverallMs) * time.Millisecond
	ctx, cancel := context.WithTimeout(ctx, overall)
	defer cancel()

	basePath, err := o.checkout.Checkout(ctx, repoURL, baseRef)
	if err != nil {
		return nil, rerrors.IndexIOError(repoURL, err)
	}
	defer o.checkout.Release(basePath)

	headPath, err := o.checkout.Checkout(ctx, repoURL, headRef)
	if err != nil {
		return nil, rerrors.IndexIOError(repoURL, err)
	}
	defer o.checkout.Release(headPath)

	baseIdx, err := indexer.BuildIndex(basePath, o.cfg.Index)
	if err != nil {
		return nil, rerrors.IndexIOError(basePath, err)
	}
	headIdx, err := indexer.BuildIndex(headPath, o.cfg.Index)
	if err != nil {
		return nil, rerrors.IndexIOError(headPath, err)
	}

	comprehensiveTTL := time.Duration(o.cfg.Cache.TTLSecondsComprehensive) * time.Second
	gapFillTTL := time.Duration(o.cfg.Cache.TTLSecondsGapFill) * time.Second
	respCache := cache.New(o.cfg.Cache.CapacityEntries, nil, comprehensiveTTL, gapFillTTL)
	client := analyzerclient.New(o.transport, respCache, analyzerClientConfig(o.cfg))
	analyzerSem := semaphore.NewWeighted(int64(o.cfg.Concurrency.AnalyzerConcurrency))
	bounds := collectionBounds(o.cfg)

	var baseResult, headResult branchResult

	if opts.Sequential {
		baseResult = runBranch(ctx, client, analyzerSem, repoURL, baseRef, baseIdx, nil, bounds)
		var known []*review.Issue
		if baseResult.err == nil {
			known = baseResult.issues
		}
		headResult = runBranch(ctx, client, analyzerSem, repoURL, headRef, headIdx, known, bounds)
	} else {
		branchSem := semaphore.NewWeighted(int64(o.cfg.Concurrency.BranchParallelism))
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := branchSem.Acquire(gctx, 1); err != nil {
				baseResult = branchResult{err: rerrors.CancelledError("Analyze", err)}
				return nil
			}
			defer branchSem.Release(1)
			baseResult = runBranch(gctx, client, analyzerSem, repoURL, baseRef, baseIdx, nil, bounds)
			return nil
		})
		g.Go(func() error {
			if err := branchSem.Acquire(gctx, 1); err != nil {
				headResult = branchResult{err: rerrors.CancelledError("Analyze", err)}
				return nil
			}
			defer branchSem.Release(1)
			headResult = runBranch(gctx, client, analyzerSem, repoURL, headRef, headIdx, nil, bounds)
			return nil
		})
		_ = g.Wait() // both goroutines always return nil; failures live in branchResult.err
	}

	if isCancelled(baseResult.err) {
		return nil, baseResult.err
	}
	if isCancelled(headResult.err) {
		return nil, headResult.err
	}

	if baseResult.err != nil && headResult.err != nil {
		return nil, baseResult.err
	}

	baseIssues, headIssues := baseResult.issues, headResult.issues
	var partialFailure *review.PartialFailure
	if baseResult.err != nil {
		partialFailure = failureDetail("base", baseResult.err)
		baseIssues = nil
	}
	if headResult.err != nil {
		partialFailure = failureDetail("head", headResult.err)
		headIssues = nil
	}

	newIssues, resolved, unchanged := categorizer.Compare(baseIssues, headIssues)

	result := &review.ComparisonResult{
		BaseIssues:      baseIssues,
		HeadIssues:      headIssues,
		NewIssues:       newIssues,
		ResolvedIssues:  resolved,
		UnchangedIssues: unchanged,
		Metadata: review.Metadata{
			Base:           baseResult.metadata,
			Head:           headResult.metadata,
			TotalDuration:  time.Since(start),
			PartialFailure: partialFailure,
			IndexStats:     review.IndexStats{BaseFiles: baseIdx.FileCount(), HeadFiles: headIdx.FileCount()},
		},
	}

	respCache.MarkDelivered(client.Keys())
	return result, nil
}

func runBranch(ctx context.Context, client *analyzerclient.Client, sem *semaphore.Weighted, repoURL, branch string, idx *indexer.RepositoryIndex, known []*review.Issue, bounds collector.Bounds) branchResult {
	issues, metadata, err := collector.Collect(ctx, client, sem, repoURL, branch, idx, known, bounds)
	if err != nil {
		metadata = review.BranchMetadata{Branch: branch, Outcome: review.BranchFailed, FailedError: err.Error()}
	}
	normalizePaths(issues, idx.Root)
	return branchResult{issues: issues, metadata: metadata, err: err}
}

// normalizePaths rewrites every known Location to a repository-relative
// path. Validation inside Collect keeps a known location only for a file
// in the index, whose paths are already relative to the checkout root,
// so known locations normally pass through unchanged; an absolute path
// the Analyzer reports outside the index arrives here as an unknown
// location and is left as it is.
func normalizePaths(issues []*review.Issue, root string) {
	for _, issue := range issues {
		if issue.Location.Known {
			issue.Location.File = pathutil.ToRelative(issue.Location.File, root)
		}
	}
}

func isCancelled(err error) bool {
	if err == nil {
		return false
	}
	var engErr *rerrors.EngineError
	return errors.As(err, &engErr) && engErr.Type == rerrors.TypeCancelled
}

func failureDetail(branch string, err error) *review.PartialFailure {
	detail := rerrors.PartialFailureDetail{Branch: branch, Category: rerrors.TypeInternal, Detail: err.Error()}
	var engErr *rerrors.EngineError
	if errors.As(err, &engErr) {
		detail.Category = engErr.Type
	}
	return &review.PartialFailure{Branch: detail.Branch, Category: string(detail.Category), Detail: detail.Detail}
}

func analyzerClientConfig(cfg *config.Config) analyzerclient.Config {
	return analyzerclient.Config{
		PerRequestTimeout: time.Duration(cfg.Timeouts.AnalyzerRequestMs) * time.Millisecond,
		MaxRetries:        cfg.Retry.MaxRetries,
		BackoffInitial:    time.Duration(cfg.Retry.BackoffInitMs) * time.Millisecond,
		BackoffMax:        time.Duration(cfg.Retry.BackoffMaxMs) * time.Millisecond,
		BackoffJitter:     cfg.Retry.BackoffJitter,
	}
}

// collectionBounds converts cfg.Collection and cfg.Timeouts.PerIterationMs
// (spec §6) into the collector.Bounds runBranch threads into Collect.
func collectionBounds(cfg *config.Config) collector.Bounds {
	return collector.Bounds{
		MinIterations:       cfg.Collection.MinIterations,
		MaxIterations:       cfg.Collection.MaxIterations,
		StableWindow:        cfg.Collection.StableWindow,
		PerIterationTimeout: time.Duration(cfg.Timeouts.PerIterationMs) * time.Millisecond,
	}
}
