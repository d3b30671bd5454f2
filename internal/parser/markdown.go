package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/alpsla/reviewengine/internal/review"
)

var (
	itemStartRe  = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+(.*)$`)
	pathLineRe   = regexp.MustCompile("`?([\\w./-]+\\.[A-Za-z0-9]+):(\\d+)`?")
	fencedCodeRe = regexp.MustCompile("(?s)```[A-Za-z0-9]*\\n(.*?)```")
	inlineCodeRe = regexp.MustCompile("`([^`\\n]+)`")
	inlineFieldRe = func(label string) *regexp.Regexp {
		return regexp.MustCompile(`(?i)\*{0,2}` + label + `\*{0,2}\s*:\s*\*{0,2}\s*([A-Za-z0-9_-]+)`)
	}
	severityFieldRe = inlineFieldRe("severity")
	categoryFieldRe = inlineFieldRe("category")
)

// parseMarkdownList parses a numbered or bulleted list of issues (spec
// §4.2 format 4), the lowest-confidence and least structured tier.
func parseMarkdownList(text string) ([]*review.Issue, []string) {
	lines := strings.Split(text, "\n")

	var starts []int
	for i, line := range lines {
		if itemStartRe.MatchString(line) {
			starts = append(starts, i)
		}
	}
	if len(starts) == 0 {
		return nil, nil
	}

	var issues []*review.Issue
	var warnings []string
	for idx, start := range starts {
		end := len(lines)
		if idx+1 < len(starts) {
			end = starts[idx+1]
		}
		block := strings.Join(lines[start:end], "\n")
		issue := buildMarkdownIssue(block)
		issues = append(issues, issue)
	}
	return issues, warnings
}

func buildMarkdownIssue(block string) *review.Issue {
	m := itemStartRe.FindStringSubmatch(strings.SplitN(block, "\n", 2)[0])
	firstLine := ""
	if m != nil {
		firstLine = m[1]
	}

	location := review.UnknownLocation
	if pm := pathLineRe.FindStringSubmatch(block); pm != nil {
		if n, err := strconv.Atoi(pm[2]); err == nil && n > 0 && !isPlaceholderLocation(pm[1]) {
			location = review.Location{File: filePathSlash(pm[1]), Line: n, Known: true}
		}
		firstLine = pathLineRe.ReplaceAllString(firstLine, "")
	}

	snippet := ""
	if fm := fencedCodeRe.FindStringSubmatch(block); fm != nil {
		snippet = strings.TrimSpace(fm[1])
	} else if cm := inlineCodeRe.FindStringSubmatch(block); cm != nil {
		snippet = strings.TrimSpace(cm[1])
	}

	severity := review.SeverityMedium
	if sm := severityFieldRe.FindStringSubmatch(block); sm != nil {
		severity = review.NormalizeSeverity(sm[1])
	}

	title := strings.TrimSpace(trimMarkdownEmphasis(firstLine))
	description := strings.TrimSpace(stripFirstLine(block))
	if title == "" {
		title = synthesizeTitle(description)
	}

	category := review.CategoryOther
	if cm := categoryFieldRe.FindStringSubmatch(block); cm != nil {
		category = normalizeCategory(cm[1], title, description)
	} else {
		category = inferCategory(title, description)
	}

	issue := &review.Issue{
		Title:       title,
		Description: description,
		Severity:    severity,
		Category:    category,
		Location:    location,
		CodeSnippet: snippet,
		Confidence:  scoreConfidence(baseConfidence(FormatMarkdownList), location, snippet),
	}
	issue.ClampConfidence()
	return issue
}

func trimMarkdownEmphasis(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*_")
	return strings.TrimSpace(s)
}

func stripFirstLine(block string) string {
	parts := strings.SplitN(block, "\n", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
