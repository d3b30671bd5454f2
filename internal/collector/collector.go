package collector

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/alpsla/reviewengine/internal/analyzerclient"
	"github.com/alpsla/reviewengine/internal/cache"
	"github.com/alpsla/reviewengine/internal/indexer"
	"github.com/alpsla/reviewengine/internal/parser"
	"github.com/alpsla/reviewengine/internal/rerrors"
	"github.com/alpsla/reviewengine/internal/review"
	"github.com/alpsla/reviewengine/internal/rlog"
	"github.com/alpsla/reviewengine/internal/validator"
)

// Default iteration bounds (spec §4.5, spec §6), used when a caller
// doesn't load these from config. minIter is enforced unconditionally:
// no convergence check fires before iteration 3, regardless of how
// quickly addedThisIter reaches zero (Open Question (c)).
const (
	minIter      = 3
	maxIter      = 10
	stableWindow = 2
)

// Bounds is the config-driven subset of spec §6 that governs one
// Collect call: iteration counts and the per-iteration Analyzer
// deadline. Threaded in from config.Collection/config.Timeouts by the
// caller (internal/orchestrator) rather than hardcoded here, so a
// deployed .reviewengine.kdl actually changes loop behavior.
type Bounds struct {
	MinIterations       int
	MaxIterations       int
	StableWindow        int
	PerIterationTimeout time.Duration
}

// DefaultBounds returns the spec §6 defaults, for callers (tests, ad
// hoc tooling) that don't have a config.Config on hand.
func DefaultBounds() Bounds {
	return Bounds{MinIterations: minIter, MaxIterations: maxIter, StableWindow: stableWindow}
}

// Collect drives one branch's Adaptive Collection Loop to convergence
// or exhaustion, then runs C3 over the accumulated set. knownIssues
// (e.g. base-branch issues when collecting head in sequential mode) are
// folded into every GapFill iteration's do-not-repeat list. sem, if
// non-nil, bounds concurrent Analyzer calls across branches (spec §6,
// "analyzerConcurrency"); a nil sem means no additional cap beyond the
// Client's own. bounds controls iteration counts and the per-iteration
// timeout; a zero Bounds{} is invalid, use DefaultBounds() instead.
func Collect(ctx context.Context, client *analyzerclient.Client, sem *semaphore.Weighted, repoURL, branch string, idx *indexer.RepositoryIndex, knownIssues []*review.Issue, bounds Bounds) ([]*review.Issue, review.BranchMetadata, error) {
	start := time.Now()
	accumulated := map[string]*review.Issue{}
	var history []review.IterationRecord
	var warnings []string
	noNewStreak := 0
	successCount := 0
	outcome := review.BranchExhausted
	converged := false
	var lastFailure string
	lastK := 0

	for k := 1; k <= bounds.MaxIterations; k++ {
		if err := ctx.Err(); err != nil {
			return nil, review.BranchMetadata{}, rerrors.CancelledError("Collect", err)
		}
		lastK = k
		iterStart := time.Now()

		iterCtx := ctx
		cancelIter := func() {}
		if bounds.PerIterationTimeout > 0 {
			iterCtx, cancelIter = context.WithTimeout(ctx, bounds.PerIterationTimeout)
		}

		class := cache.PromptComprehensive
		prompt := BuildComprehensivePrompt()
		if k >= 2 {
			class = cache.GapFillClass(k)
			prompt = BuildGapFillPrompt(doNotRepeatList(accumulated, knownIssues))
		}

		req := analyzerclient.Request{
			RepoURL:          repoURL,
			Branch:           branch,
			Messages:         []analyzerclient.Message{{Role: "user", Text: prompt}},
			ResponseFormatJS: true,
		}

		payload, callErr := callAnalyzer(iterCtx, client, sem, repoURL, branch, class, req)
		cancelIter()
		if isMisclassifiedIterationTimeout(callErr, iterCtx, ctx) {
			// The client's internal retry/backoff loop treats any
			// ctx.Done() as a cancellation, but here it was only the
			// per-iteration deadline that tripped, not the caller's own
			// context. Recategorize as a transient Analyzer failure so
			// the orchestrator doesn't discard an otherwise-healthy
			// comparison over one slow iteration.
			callErr = rerrors.FetchFailed(true, "Collect", "per-iteration timeout exceeded", callErr)
		}
		if callErr != nil {
			lastFailure = callErr.Error()
			history = append(history, review.IterationRecord{
				Iteration:   k,
				Duration:    time.Since(iterStart),
				FailedError: lastFailure,
			})
			if k > bounds.MinIterations && successCount > 0 {
				// Non-fatal: break to Validating with whatever was
				// accumulated so far (spec §4.5 failure semantics).
				break
			}
			return nil, review.BranchMetadata{}, callErr
		}

		successCount++
		result := parser.Parse(payload)
		warnings = append(warnings, result.Warnings...)

		before := len(accumulated)
		for _, issue := range result.Issues {
			mergeIssue(accumulated, issue)
		}
		addedThisIter := len(accumulated) - before

		rec := review.IterationRecord{
			Iteration:  k,
			AddedCount: addedThisIter,
			Duration:   time.Since(iterStart),
			Warnings:   result.Warnings,
		}

		if k >= bounds.MinIterations && addedThisIter == 0 {
			noNewStreak++
		} else {
			noNewStreak = 0
		}

		if noNewStreak >= bounds.StableWindow {
			rec.Converged = true
			history = append(history, rec)
			converged = true
			outcome = review.BranchConverged
			break
		}
		history = append(history, rec)

		if k == bounds.MaxIterations {
			outcome = review.BranchExhausted
			break
		}
	}

	candidates := make([]*review.Issue, 0, len(accumulated))
	for _, issue := range accumulated {
		candidates = append(candidates, issue)
	}

	valid, recovered, dropped := validator.ValidateAndFilter(candidates, idx)
	final := collapseRecoveryDuplicates(valid, recovered)

	metadata := review.BranchMetadata{
		Branch:      branch,
		Iterations:  lastK,
		Outcome:     outcome,
		Converged:   converged,
		Recovered:   len(recovered),
		Dropped:     len(dropped),
		Duration:    time.Since(start),
		Warnings:    warnings,
		FailedError: lastFailure,
	}
	for _, rec := range history {
		rlog.Printf("collector: branch=%s iteration=%d added=%d converged=%v failed=%q",
			branch, rec.Iteration, rec.AddedCount, rec.Converged, rec.FailedError)
	}

	return final, metadata, nil
}

// callAnalyzer performs one C4 invocation, acquiring sem first if set.
func callAnalyzer(ctx context.Context, client *analyzerclient.Client, sem *semaphore.Weighted, repoURL, branch string, class cache.PromptClass, req analyzerclient.Request) (interface{}, error) {
	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, rerrors.CancelledError("Collect", err)
		}
		defer sem.Release(1)
	}
	return client.Call(ctx, repoURL, branch, class, req)
}

// isMisclassifiedIterationTimeout reports whether callErr is a
// rerrors.TypeCancelled error that really stems from iterCtx's
// per-iteration deadline (not from outerCtx, the caller's own context,
// being done). The client's retry/backoff loop wraps any ctx.Done() as
// a cancellation regardless of which derived context tripped it.
func isMisclassifiedIterationTimeout(callErr error, iterCtx, outerCtx context.Context) bool {
	if callErr == nil || outerCtx.Err() != nil {
		return false
	}
	var engErr *rerrors.EngineError
	if !errors.As(callErr, &engErr) || engErr.Type != rerrors.TypeCancelled {
		return false
	}
	return errors.Is(iterCtx.Err(), context.DeadlineExceeded)
}

// mergeIssue dedupes issue into accumulated by its intra-branch
// fingerprint (spec §4.5 step 4). On collision the higher-confidence
// record wins.
func mergeIssue(accumulated map[string]*review.Issue, issue *review.Issue) {
	fp := review.IntraBranchFingerprint(issue)
	issue.Fingerprint = fp
	existing, ok := accumulated[fp]
	if !ok || issue.Confidence > existing.Confidence {
		accumulated[fp] = issue
	}
}

// collapseRecoveryDuplicates recomputes fingerprints over valid∪recovered
// so that two issues C3 recovered to the same location collapse into
// one, per spec §4.5 step 8.
func collapseRecoveryDuplicates(valid, recovered []*review.Issue) []*review.Issue {
	byFP := map[string]*review.Issue{}
	order := make([]string, 0, len(valid)+len(recovered))
	for _, issue := range append(append([]*review.Issue{}, valid...), recovered...) {
		fp := review.IntraBranchFingerprint(issue)
		issue.Fingerprint = fp
		existing, ok := byFP[fp]
		if !ok {
			order = append(order, fp)
			byFP[fp] = issue
			continue
		}
		if issue.Confidence > existing.Confidence {
			byFP[fp] = issue
		}
	}
	out := make([]*review.Issue, 0, len(order))
	for _, fp := range order {
		out = append(out, byFP[fp])
	}
	return out
}

// doNotRepeatList builds a GapFill prompt's do-not-repeat entries from
// the accumulated set plus any knownIssues merged in from another
// branch's run, deduped by normalized title and ordered deterministically.
func doNotRepeatList(accumulated map[string]*review.Issue, knownIssues []*review.Issue) []knownEntry {
	seen := map[string]bool{}
	var entries []knownEntry

	add := func(issue *review.Issue) {
		key := review.NormalizeTitle(issue.Title)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		file := ""
		if issue.Location.Known {
			file = issue.Location.File
		}
		entries = append(entries, knownEntry{Title: issue.Title, File: file})
	}

	// Accumulated first, in fingerprint order, for determinism.
	fps := make([]string, 0, len(accumulated))
	for fp := range accumulated {
		fps = append(fps, fp)
	}
	sort.Strings(fps)
	for _, fp := range fps {
		add(accumulated[fp])
	}
	for _, issue := range knownIssues {
		add(issue)
	}
	return entries
}
