package parser

import (
	"strings"

	"github.com/alpsla/reviewengine/internal/review"
)

// categoryKeywords maps each normalized category to the substrings that
// suggest it when an issue arrives without an explicit category field.
// Checked in this order so the more specific categories win ties.
var categoryKeywordOrder = []review.Category{
	review.CategorySecurity,
	review.CategoryPerformance,
	review.CategoryErrorHandling,
	review.CategoryTesting,
	review.CategoryDependencies,
	review.CategoryArchitecture,
}

var categoryKeywords = map[review.Category][]string{
	review.CategorySecurity: {
		"sql injection", "xss", "csrf", "authentication", "authorization",
		"password", "secret", "credential", "token leak", "crypto",
		"vulnerab", "sanitiz", "unsafe deserializ", "command injection",
	},
	review.CategoryPerformance: {
		"n+1", "latency", "memory leak", "o(n", "throughput", "slow query",
		"cache miss", "goroutine leak", "allocation", "blocking call",
	},
	review.CategoryErrorHandling: {
		"error handling", "unhandled exception", "unhandled error", "panic",
		"swallow", "try/catch", "rejected promise", "silently fail",
	},
	review.CategoryTesting: {
		"test coverage", "untested", "missing test", "flaky test", "no assertions",
	},
	review.CategoryDependencies: {
		"outdated dependency", "vulnerable package", "dependency version",
		"npm audit", "deprecated package",
	},
	review.CategoryArchitecture: {
		"tight coupling", "circular depend", "separation of concerns",
		"god object", "single responsibility", "layering violation",
	},
}

// categoryAliases maps free-form category labels onto the canonical set.
var categoryAliases = map[string]review.Category{
	"security":       review.CategorySecurity,
	"vulnerability":  review.CategorySecurity,
	"performance":    review.CategoryPerformance,
	"perf":           review.CategoryPerformance,
	"code-quality":   review.CategoryCodeQuality,
	"code quality":   review.CategoryCodeQuality,
	"quality":        review.CategoryCodeQuality,
	"style":          review.CategoryCodeQuality,
	"dependencies":   review.CategoryDependencies,
	"dependency":     review.CategoryDependencies,
	"testing":        review.CategoryTesting,
	"tests":          review.CategoryTesting,
	"architecture":   review.CategoryArchitecture,
	"design":         review.CategoryArchitecture,
	"error-handling": review.CategoryErrorHandling,
	"error handling": review.CategoryErrorHandling,
	"errors":         review.CategoryErrorHandling,
}

// normalizeCategory maps a raw category label to the canonical set,
// falling back to keyword inference over title+description, and
// finally to CategoryCodeQuality.
func normalizeCategory(raw, title, description string) review.Category {
	key := strings.ToLower(strings.TrimSpace(raw))
	if cat, ok := categoryAliases[key]; ok {
		return cat
	}
	return inferCategory(title, description)
}

func inferCategory(title, description string) review.Category {
	haystack := strings.ToLower(title + " " + description)
	for _, cat := range categoryKeywordOrder {
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(haystack, kw) {
				return cat
			}
		}
	}
	return review.CategoryCodeQuality
}

// placeholderFiles are location values the model emits when it has no
// real file to point to; they must not be treated as a known location.
var placeholderFiles = map[string]bool{
	"":             true,
	"unknown":      true,
	"n/a":          true,
	"na":           true,
	"none":         true,
	"<path>":       true,
	"<file>":       true,
	"path/to/file": true,
	"general":      true,
	"...":          true,
}

// isPlaceholderLocation reports whether file looks like a stand-in
// value rather than a real repository-relative path (spec §4.2).
func isPlaceholderLocation(file string) bool {
	key := strings.ToLower(strings.TrimSpace(file))
	if placeholderFiles[key] {
		return true
	}
	if strings.Contains(key, "<") || strings.Contains(key, ">") {
		return true
	}
	// An ellipsis path segment ("src/.../payment.ts") is the model
	// eliding an unknown middle portion of a path, not a real location.
	return strings.Contains(key, "/.../")
}

// synthesizeTitle builds a title from the description when the source
// format omitted one, truncating to keep titles display-sized.
func synthesizeTitle(description string) string {
	d := strings.TrimSpace(description)
	if d == "" {
		return "Untitled issue"
	}
	if idx := strings.IndexAny(d, ".\n"); idx > 0 && idx < 80 {
		d = d[:idx]
	} else if len(d) > 80 {
		d = strings.TrimSpace(d[:80])
	}
	return d
}

// baseConfidence returns the per-format starting confidence (spec §4.2).
func baseConfidence(format Format) int {
	switch format {
	case FormatStructured:
		return 95
	case FormatEmbeddedJSON:
		return 80
	case FormatLabeledText:
		return 70
	case FormatMarkdownList:
		return 60
	default:
		return 50
	}
}

// scoreConfidence applies the §4.2 penalties for unknown location and
// missing code snippet to a format's base confidence.
func scoreConfidence(base int, loc review.Location, snippet string) int {
	c := base
	if !loc.Known {
		c -= 10
	}
	if strings.TrimSpace(snippet) == "" {
		c -= 10
	}
	if c < 0 {
		c = 0
	}
	if c > 100 {
		c = 100
	}
	return c
}
