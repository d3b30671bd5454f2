package indexer

import "strings"

// normalizeFragment applies the spec §4.1 normalization — strip
// leading/trailing whitespace, collapse whitespace runs to a single
// space, drop blank lines — to a contiguous group of source lines. This
// exact function is used both when building snippetBuckets and inside
// LookupSnippet, so the two can never drift apart.
func normalizeFragment(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		trimmed := collapseInner(strings.TrimSpace(line))
		if trimmed == "" {
			continue // drop blank lines
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(trimmed)
	}
	return b.String()
}

// rawFragment joins a contiguous group of lines verbatim (only trimming
// the overall leading/trailing whitespace of the block), used to decide
// whether a match is byte-exact (score 100) vs. merely
// whitespace-normalized (score 80).
func rawFragment(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// NormalizeFragmentString applies the same whitespace normalization as
// normalizeFragment to an already-joined string, so callers outside this
// package (the validator's re-check step) can compare snippets against
// extracted source using identical rules.
func NormalizeFragmentString(s string) string {
	return normalizeFragment(strings.Split(s, "\n"))
}

// collapseInner collapses internal runs of whitespace to a single space.
func collapseInner(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if !inSpace {
				b.WriteByte(' ')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
