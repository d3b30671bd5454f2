package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/alpsla/reviewengine/internal/review"
)

// labelLineRe matches a "Label: value" line at the start of a line; the
// label itself is validated against labelCanonical below so that an
// ordinary sentence containing a colon (a URL, a ratio) is never
// mistaken for a field.
var labelLineRe = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z ]{0,20}?)\s*:\s*(.*)$`)

var labelCanonical = map[string]string{
	"issue": "title", "title": "title",
	"severity": "severity",
	"category": "category",
	"file":     "file", "path": "file",
	"line":           "line",
	"code":           "code", "snippet": "code",
	"recommendation": "suggestion", "fix": "suggestion", "suggestion": "suggestion",
	"impact": "description", "description": "description",
}

// parseLabeledBlocks parses the "labeled text block" format: records of
// "Label: value" lines, one record per occurrence of an Issue/Title
// label (spec §4.2 format 3, scenario S1).
func parseLabeledBlocks(text string) ([]*review.Issue, []string) {
	lines := strings.Split(text, "\n")

	type labelSpan struct {
		canonical string
		start     int // index into lines of the label line itself
	}
	var spans []labelSpan
	for i, line := range lines {
		m := labelLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		canon, ok := labelCanonical[strings.ToLower(strings.TrimSpace(m[1]))]
		if !ok {
			continue
		}
		spans = append(spans, labelSpan{canonical: canon, start: i})
	}
	if len(spans) == 0 {
		return nil, nil
	}

	// Record boundaries fall at each "title" span; everything before the
	// first title span (if any) is discarded preamble.
	var recordStarts []int
	for i, s := range spans {
		if s.canonical == "title" {
			recordStarts = append(recordStarts, i)
		}
	}
	if len(recordStarts) == 0 {
		// No explicit Issue/Title label anywhere: treat the whole span
		// list as a single record so other fields are not lost.
		recordStarts = []int{0}
	}

	var issues []*review.Issue
	var warnings []string
	for r, spanStartIdx := range recordStarts {
		spanEndIdx := len(spans)
		if r+1 < len(recordStarts) {
			spanEndIdx = recordStarts[r+1]
		}
		record := spans[spanStartIdx:spanEndIdx]
		fields := map[string]string{}
		for si, s := range record {
			lineEnd := len(lines)
			if si+1 < len(record) {
				lineEnd = record[si+1].start
			} else if spanEndIdx < len(spans) {
				lineEnd = spans[spanEndIdx].start
			}
			m := labelLineRe.FindStringSubmatch(lines[s.start])
			value := strings.TrimSpace(m[2])
			var extra []string
			for li := s.start + 1; li < lineEnd; li++ {
				l := strings.TrimSpace(lines[li])
				if l == "" {
					continue
				}
				extra = append(extra, l)
			}
			if len(extra) > 0 {
				if value != "" {
					value = value + "\n" + strings.Join(extra, "\n")
				} else {
					value = strings.Join(extra, "\n")
				}
			}
			if existing, ok := fields[s.canonical]; ok && existing != "" {
				fields[s.canonical] = existing + "\n" + value
			} else {
				fields[s.canonical] = value
			}
		}

		issue, warn := buildLabeledIssue(fields)
		if warn != "" {
			warnings = append(warnings, warn)
		}
		issues = append(issues, issue)
	}

	return issues, warnings
}

func buildLabeledIssue(fields map[string]string) (*review.Issue, string) {
	title := strings.TrimSpace(fields["title"])
	description := strings.TrimSpace(fields["description"])
	if title == "" {
		title = synthesizeTitle(description)
	}

	severity := review.NormalizeSeverity(fields["severity"])
	category := normalizeCategory(fields["category"], title, description)

	location := review.UnknownLocation
	file := strings.TrimSpace(fields["file"])
	if lineStr := strings.TrimSpace(fields["line"]); lineStr != "" && !isPlaceholderLocation(file) {
		if n, err := strconv.Atoi(lineStr); err == nil && n > 0 {
			location = review.Location{File: filePathSlash(file), Line: n, Known: true}
		}
	}

	snippet := strings.TrimSpace(fields["code"])
	suggestion := strings.TrimSpace(fields["suggestion"])

	issue := &review.Issue{
		Title:       title,
		Description: description,
		Severity:    severity,
		Category:    category,
		Location:    location,
		CodeSnippet: snippet,
		Suggestion:  suggestion,
		Confidence:  scoreConfidence(baseConfidence(FormatLabeledText), location, snippet),
	}
	issue.ClampConfidence()
	return issue, ""
}
