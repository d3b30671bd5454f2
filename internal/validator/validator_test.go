package validator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alpsla/reviewengine/internal/config"
	"github.com/alpsla/reviewengine/internal/indexer"
	"github.com/alpsla/reviewengine/internal/review"
)

func buildTestIndex(t *testing.T, files map[string]string) *indexer.RepositoryIndex {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	idx, err := indexer.BuildIndex(root, config.Default().Index)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestValidateKeepsAlreadyCorrectLocation(t *testing.T) {
	idx := buildTestIndex(t, map[string]string{
		"source/index.ts": "line1\nline2\n...\n" + "await fn();\n",
	})
	issue := &review.Issue{
		Title:       "Unhandled promise rejection",
		Severity:    review.SeverityHigh,
		Location:    review.Location{File: "source/index.ts", Line: 4, Known: true},
		CodeSnippet: "await fn();",
		Confidence:  70,
	}

	result := Validate(issue, idx)
	if result.Outcome != OutcomeValid {
		t.Fatalf("expected OutcomeValid, got %s", result.Outcome)
	}
	if result.Issue.Location.Line != 4 || result.Issue.Location.File != "source/index.ts" {
		t.Errorf("expected unchanged location, got %+v", result.Issue.Location)
	}
	if result.Issue.Recovered {
		t.Error("valid issue must not be marked Recovered")
	}
}

func TestValidateRecoversFromPlaceholderPath(t *testing.T) {
	// Mirrors spec scenario S2: the analyzer cites a path that does not
	// exist, but the real occurrence of its code snippet is findable
	// elsewhere in the index.
	idx := buildTestIndex(t, map[string]string{
		"source/retry.ts": "async function retry() {\n  await fn();\n  return true;\n}\n",
	})
	issue := &review.Issue{
		Title:       "Unhandled promise rejection",
		Severity:    review.SeverityHigh,
		Location:    review.Location{File: "/src/api/payment.ts", Line: 10, Known: true},
		CodeSnippet: "await fn();\nreturn true;",
		Confidence:  90,
	}

	result := Validate(issue, idx)
	if result.Outcome != OutcomeRecovered {
		t.Fatalf("expected OutcomeRecovered, got %s", result.Outcome)
	}
	if !result.Issue.Recovered {
		t.Error("expected Recovered flag set")
	}
	if result.Issue.Location.File != "source/retry.ts" || result.Issue.Location.Line != 2 {
		t.Errorf("expected recovered location source/retry.ts:2, got %+v", result.Issue.Location)
	}
	if result.Issue.Confidence > 80 {
		t.Errorf("expected confidence capped at best match score (<=80), got %d", result.Issue.Confidence)
	}
}

func TestValidateKeepsHighSeverityWithUnknownLocation(t *testing.T) {
	idx := buildTestIndex(t, map[string]string{"a.go": "package a\n"})
	issue := &review.Issue{
		Title:      "Critical secret leak",
		Severity:   review.SeverityCritical,
		Location:   review.UnknownLocation,
		Confidence: 60,
	}

	result := Validate(issue, idx)
	if result.Outcome != OutcomeValid {
		t.Fatalf("expected high-severity issue to be kept as valid, got %s", result.Outcome)
	}
	if result.Issue.Location.Known {
		t.Error("expected location to remain unknown")
	}
	if result.Issue.Confidence != 40 {
		t.Errorf("expected confidence reduced by 20 to 40, got %d", result.Issue.Confidence)
	}
}

func TestValidateDropsLowSeverityWithNoLocation(t *testing.T) {
	idx := buildTestIndex(t, map[string]string{"a.go": "package a\n"})
	issue := &review.Issue{
		Title:      "Minor style nit",
		Severity:   review.SeverityLow,
		Location:   review.UnknownLocation,
		Confidence: 50,
	}

	result := Validate(issue, idx)
	if result.Outcome != OutcomeDropped {
		t.Fatalf("expected OutcomeDropped, got %s", result.Outcome)
	}
	if result.Reason != "NoLocation" {
		t.Errorf("expected reason NoLocation, got %s", result.Reason)
	}
}

func TestValidateAndFilterPartitions(t *testing.T) {
	idx := buildTestIndex(t, map[string]string{"a.go": "package a\nfunc f() {}\n"})
	issues := []*review.Issue{
		{Title: "ok", Severity: review.SeverityMedium, Location: review.Location{File: "a.go", Line: 1, Known: true}},
		{Title: "drop-me", Severity: review.SeverityLow, Location: review.UnknownLocation},
	}

	valid, recovered, dropped := ValidateAndFilter(issues, idx)
	if len(valid) != 1 || len(recovered) != 0 || len(dropped) != 1 {
		t.Fatalf("expected 1 valid, 0 recovered, 1 dropped; got %d/%d/%d", len(valid), len(recovered), len(dropped))
	}
}
