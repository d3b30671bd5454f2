// Package parser implements the Unified Response Parser (C2): it turns
// one Analyzer response, in any of four supported shapes, into a
// normalized list of candidate issues. Parse never errors on content —
// unrecognized input produces an empty result and a warning (spec §4.2,
// property P6) — and it performs no I/O.
package parser

import (
	"encoding/json"
	"strings"

	"github.com/alpsla/reviewengine/internal/review"
)

// Format identifies which of the four shapes a response matched.
type Format string

const (
	FormatStructured   Format = "structured"
	FormatEmbeddedJSON Format = "embedded_json"
	FormatLabeledText  Format = "labeled_text"
	FormatMarkdownList Format = "markdown_list"
	FormatUnrecognized Format = "unrecognized"
)

// Result is the output of Parse.
type Result struct {
	Issues   []*review.Issue
	Format   Format
	Warnings []string
}

// Parse converts payload — a string or a map[string]interface{} decoded
// from JSON — into a Result. It auto-detects format in the order given
// by spec §4.2: structured object, embedded JSON, labeled text blocks,
// numbered/bulleted markdown.
func Parse(payload interface{}) Result {
	switch v := payload.(type) {
	case nil:
		return Result{Format: FormatUnrecognized, Warnings: []string{"empty payload"}}
	case map[string]interface{}:
		if issues, warnings, ok := parseStructured(v, 95); ok {
			return Result{Issues: issues, Format: FormatStructured, Warnings: warnings}
		}
		return Result{Format: FormatUnrecognized, Warnings: []string{"object payload has no issues array"}}
	case string:
		return parseString(v)
	default:
		return Result{Format: FormatUnrecognized, Warnings: []string{"unsupported payload type"}}
	}
}

func parseString(s string) Result {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Result{Format: FormatUnrecognized, Warnings: []string{"empty payload"}}
	}

	// Case 1: the whole string is a structured JSON object.
	var whole map[string]interface{}
	if json.Unmarshal([]byte(trimmed), &whole) == nil {
		if issues, warnings, ok := parseStructured(whole, 95); ok {
			return Result{Issues: issues, Format: FormatStructured, Warnings: warnings}
		}
	}

	// Case 2: a balanced {...} is embedded in surrounding prose.
	if frag, ok := extractBalancedJSON(trimmed); ok {
		var embedded map[string]interface{}
		if json.Unmarshal([]byte(frag), &embedded) == nil {
			if issues, warnings, ok := parseStructured(embedded, 80); ok {
				return Result{Issues: issues, Format: FormatEmbeddedJSON, Warnings: warnings}
			}
		}
	}

	// Case 3: labeled text blocks.
	if issues, warnings := parseLabeledBlocks(trimmed); len(issues) > 0 {
		return Result{Issues: issues, Format: FormatLabeledText, Warnings: warnings}
	}

	// Case 4: numbered/bulleted markdown list.
	if issues, warnings := parseMarkdownList(trimmed); len(issues) > 0 {
		return Result{Issues: issues, Format: FormatMarkdownList, Warnings: warnings}
	}

	return Result{Format: FormatUnrecognized, Warnings: []string{"response did not match any known format"}}
}
