package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alpsla/reviewengine/internal/review"
)

// parseStructured converts a decoded JSON object into issues. It
// requires an "issues" array; any other shape is reported as not-ok so
// the caller can fall through to the next format tier.
func parseStructured(obj map[string]interface{}, baseConf int) ([]*review.Issue, []string, bool) {
	raw, ok := obj["issues"]
	if !ok {
		return nil, nil, false
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, []string{"issues field is not an array"}, false
	}

	var issues []*review.Issue
	var warnings []string
	for i, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			warnings = append(warnings, fmt.Sprintf("issues[%d] is not an object, skipped", i))
			continue
		}
		issue, warn := buildStructuredIssue(m, baseConf)
		if warn != "" {
			warnings = append(warnings, warn)
		}
		issues = append(issues, issue)
	}
	return issues, warnings, true
}

func buildStructuredIssue(m map[string]interface{}, baseConf int) (*review.Issue, string) {
	title := firstString(m, "title", "issue", "name")
	description := firstString(m, "description", "impact", "summary", "details")
	if title == "" {
		title = synthesizeTitle(description)
	}

	severity := review.NormalizeSeverity(firstString(m, "severity", "level"))
	category := normalizeCategory(firstString(m, "category", "type"), title, description)

	file := firstString(m, "file", "path", "filePath")
	line, hasLine := firstInt(m, "line", "lineNumber")
	column, _ := firstInt(m, "column", "col")

	if loc, ok := m["location"].(map[string]interface{}); ok {
		if file == "" {
			file = firstString(loc, "file", "path")
		}
		if !hasLine {
			line, hasLine = firstInt(loc, "line", "lineNumber")
		}
		if column == 0 {
			column, _ = firstInt(loc, "column", "col")
		}
	}

	location := review.UnknownLocation
	if hasLine && line > 0 && !isPlaceholderLocation(file) {
		location = review.Location{File: filePathSlash(file), Line: line, Column: column, Known: true}
	}

	snippet := firstString(m, "code", "snippet", "codeSnippet", "codeExcerpt")
	suggestion := firstString(m, "suggestion", "recommendation", "fix")

	confidence := scoreConfidence(baseConf, location, snippet)
	if v, ok := firstInt(m, "confidence"); ok {
		confidence = v
	}

	issue := &review.Issue{
		Title:       title,
		Description: description,
		Severity:    severity,
		Category:    category,
		Location:    location,
		CodeSnippet: snippet,
		Suggestion:  suggestion,
		Confidence:  confidence,
	}
	issue.ClampConfidence()
	return issue, ""
}

func filePathSlash(p string) string {
	return strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch t := v.(type) {
			case string:
				if s := strings.TrimSpace(t); s != "" {
					return s
				}
			case fmt.Stringer:
				return t.String()
			}
		}
	}
	return ""
}

func firstInt(m map[string]interface{}, keys ...string) (int, bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return int(t), true
		case int:
			return t, true
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}
