// Package collector implements the Adaptive Collection Loop (C5): the
// iterative Comprehensive → GapFill cycle that drives one branch's
// Analyzer conversation to convergence. Grounded on the teacher's own
// multi-pass scan loops (internal/indexing's incremental reindex walk)
// generalized from "walk files to a fixed point" to "prompt the
// Analyzer to a fixed point."
package collector

import (
	"fmt"
	"strings"
)

// promptTemplate holds the static wording for one kind of iteration
// prompt. Per spec §9's design note, gap-prompt text is data, not code:
// these are parameterized values composed by substitution, so evolving
// the wording never touches the state machine in collector.go.
type promptTemplate struct {
	intro       string
	asks        []string
	antiPlaceholder string
}

var comprehensiveTemplate = promptTemplate{
	intro: "Review this repository for code issues. For every issue found, " +
		"report a title, severity, category, file, line, a short code " +
		"snippet, and a concrete recommendation.",
	antiPlaceholder: "Use exact repository paths; never fabricate a file " +
		"or line number. If you cannot pin down a location, say so " +
		"explicitly rather than guessing.",
}

var gapFillTemplate = promptTemplate{
	intro: "Continue reviewing this repository. The following issues have " +
		"already been reported — do not repeat them:",
	asks: []string{
		"edge cases and boundary conditions",
		"concurrency and race-condition hazards",
		"error handling and propagation paths",
		"dependency and version issues",
	},
	antiPlaceholder: "Use exact repository paths; never fabricate a file " +
		"or line number.",
}

// knownEntry is one line of a GapFill prompt's do-not-repeat list.
type knownEntry struct {
	Title string
	File  string
}

// BuildComprehensivePrompt renders the k=1 prompt (spec §4.5 step 1).
func BuildComprehensivePrompt() string {
	return comprehensiveTemplate.intro + " " + comprehensiveTemplate.antiPlaceholder
}

// BuildGapFillPrompt renders the k≥2 prompt: the do-not-repeat list
// built from already-known titles/files, followed by directed asks.
func BuildGapFillPrompt(known []knownEntry) string {
	var b strings.Builder
	b.WriteString(gapFillTemplate.intro)
	b.WriteByte('\n')
	for _, k := range known {
		file := k.File
		if file == "" {
			file = "unknown"
		}
		fmt.Fprintf(&b, "- %s (%s)\n", k.Title, file)
	}
	b.WriteString("Focus particularly on: ")
	b.WriteString(strings.Join(gapFillTemplate.asks, "; "))
	b.WriteString(". ")
	b.WriteString(gapFillTemplate.antiPlaceholder)
	return b.String()
}
