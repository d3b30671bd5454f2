// Package categorizer implements the Cross-Branch Categorizer (C6): a
// pure function comparing a base branch's final issues against a head
// branch's final issues. Grounded on the teacher's own compare-two-sets
// reporting step (internal/git's diff-stat summarization, which reduces
// two file listings to added/removed/unchanged) generalized from files
// to Issues and from path equality to the location-agnostic
// cross-branch fingerprint.
package categorizer

import (
	"sort"

	"github.com/alpsla/reviewengine/internal/review"
	"github.com/alpsla/reviewengine/internal/rlog"
)

// Compare partitions base and head issues into new, resolved, and
// unchanged sets using the cross-branch fingerprint (spec §4.6). It
// never mutates its inputs.
func Compare(base, head []*review.Issue) (newIssues, resolved []*review.Issue, unchanged []review.UnchangedPair) {
	baseByFP := map[string]*review.Issue{}
	for _, issue := range base {
		baseByFP[review.CrossBranchFingerprint(issue)] = issue
	}

	headByFP := dedupeHeadCollisions(head)

	matchedBase := map[string]bool{}
	for fp, headIssue := range headByFP {
		if baseIssue, ok := baseByFP[fp]; ok {
			unchanged = append(unchanged, review.UnchangedPair{
				Head:             headIssue,
				Base:             baseIssue,
				OriginalLocation: baseIssue.Location,
			})
			matchedBase[fp] = true
		} else {
			newIssues = append(newIssues, headIssue)
		}
	}

	for fp, baseIssue := range baseByFP {
		if !matchedBase[fp] {
			resolved = append(resolved, baseIssue)
		}
	}

	sortIssues(newIssues)
	sortIssues(resolved)
	sort.Slice(unchanged, func(i, j int) bool {
		return issueLess(unchanged[i].Head, unchanged[j].Head)
	})

	return newIssues, resolved, unchanged
}

// dedupeHeadCollisions builds a fingerprint→issue map from head,
// keeping the highest-confidence record on a collision and logging a
// warning — collisions should not occur after C5's own dedupe, but C6
// treats it as a recoverable anomaly rather than a bug to crash on
// (spec §4.6 edge case).
func dedupeHeadCollisions(head []*review.Issue) map[string]*review.Issue {
	byFP := make(map[string]*review.Issue, len(head))
	for _, issue := range head {
		fp := review.CrossBranchFingerprint(issue)
		existing, ok := byFP[fp]
		if !ok {
			byFP[fp] = issue
			continue
		}
		if issue.Confidence > existing.Confidence {
			byFP[fp] = issue
		}
		rlog.Printf("categorizer: head fingerprint collision on %q (%q vs %q), kept higher-confidence record",
			fp, existing.Title, issue.Title)
	}
	return byFP
}

// sortIssues orders a partition by severity (critical→low), then
// category, then file path, then line (spec §4.6).
func sortIssues(issues []*review.Issue) {
	sort.Slice(issues, func(i, j int) bool {
		return issueLess(issues[i], issues[j])
	})
}

func issueLess(a, b *review.Issue) bool {
	if a.Severity.Rank() != b.Severity.Rank() {
		return a.Severity.Rank() < b.Severity.Rank()
	}
	if a.Category != b.Category {
		return a.Category < b.Category
	}
	if a.Location.File != b.Location.File {
		return a.Location.File < b.Location.File
	}
	return a.Location.Line < b.Location.Line
}
