// Package validator implements the Issue Validator & Recovery (C3): it
// confirms each candidate issue's location against a RepositoryIndex
// and, when the location is wrong or missing, recovers it via snippet
// lookup. It guarantees invariant I1 — after validation, every issue
// with a known location points at a real file/line.
package validator

import (
	"github.com/alpsla/reviewengine/internal/indexer"
	"github.com/alpsla/reviewengine/internal/review"
)

// Outcome is the disposition C3 assigns to one candidate issue.
type Outcome string

const (
	OutcomeValid     Outcome = "valid"
	OutcomeRecovered Outcome = "recovered"
	OutcomeDropped   Outcome = "dropped"
)

// Result pairs one issue with the disposition Validate gave it. Issue is
// nil when Outcome is OutcomeDropped.
type Result struct {
	Issue   *review.Issue
	Outcome Outcome
	Reason  string
}

// Validate runs the three-step algorithm of spec §4.3 against a single
// candidate issue. It never mutates the input issue; Valid and Recovered
// results carry a copy.
func Validate(issue *review.Issue, idx *indexer.RepositoryIndex) Result {
	// Step 1: the claimed location is already correct.
	if issue.Location.Known && idx.HasFile(issue.Location.File) && issue.Location.Line <= idx.LineCount(issue.Location.File) {
		if locationSnippetMatches(issue, idx) {
			valid := cloneIssue(issue)
			return Result{Issue: valid, Outcome: OutcomeValid}
		}
		// Snippet mismatch at the claimed location: fall through to
		// recovery exactly as if the location had been unknown.
	}

	// Step 2: recover via snippet lookup.
	if issue.CodeSnippet != "" {
		matches := indexer.LookupSnippet(idx, issue.CodeSnippet)
		if len(matches) > 0 {
			best := matches[0]
			recovered := cloneIssue(issue)
			recovered.Location = review.Location{File: best.File, Line: best.Line, Known: true}
			recovered.Recovered = true
			if best.MatchScore < recovered.Confidence {
				recovered.Confidence = best.MatchScore
			}
			recovered.ClampConfidence()
			return Result{Issue: recovered, Outcome: OutcomeRecovered}
		}
	}

	// Step 3: no location, no recoverable snippet.
	if issue.Severity == review.SeverityHigh || issue.Severity == review.SeverityCritical {
		kept := cloneIssue(issue)
		kept.Location = review.UnknownLocation
		kept.Confidence -= 20
		kept.ClampConfidence()
		kept.DroppedIfLow = true
		return Result{Issue: kept, Outcome: OutcomeValid}
	}

	return Result{Outcome: OutcomeDropped, Reason: "NoLocation"}
}

// ValidateAndFilter runs Validate over every issue and partitions the
// results, guaranteeing invariant I1 on valid ∪ recovered.
func ValidateAndFilter(issues []*review.Issue, idx *indexer.RepositoryIndex) (valid, recovered, dropped []*review.Issue) {
	for _, issue := range issues {
		result := Validate(issue, idx)
		switch result.Outcome {
		case OutcomeRecovered:
			recovered = append(recovered, result.Issue)
		case OutcomeValid:
			valid = append(valid, result.Issue)
		case OutcomeDropped:
			dropped = append(dropped, issue)
		}
	}
	return valid, recovered, dropped
}

// locationSnippetMatches re-checks that the issue's own code snippet (if
// any) actually appears at its claimed location, catching analyzer
// responses that cite the right file with the wrong line.
func locationSnippetMatches(issue *review.Issue, idx *indexer.RepositoryIndex) bool {
	if issue.CodeSnippet == "" {
		return true // nothing to cross-check, trust the claimed location
	}
	extracted, err := indexer.ExtractLines(idx, issue.Location.File, issue.Location.Line, 0)
	if err != nil {
		return false
	}
	return indexer.NormalizeFragmentString(extracted.Code) == indexer.NormalizeFragmentString(issue.CodeSnippet)
}

func cloneIssue(issue *review.Issue) *review.Issue {
	clone := *issue
	return &clone
}
