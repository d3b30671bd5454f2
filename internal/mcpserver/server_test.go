package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/alpsla/reviewengine/internal/checkout"
	"github.com/alpsla/reviewengine/internal/orchestrator"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	provider, err := checkout.NewProvider(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	orch := orchestrator.New(provider, nil, nil)
	return New(orch, "reviewengine-test", "0.0.0-test")
}

func callRequest(params interface{}) *mcp.CallToolRequest {
	body, _ := json.Marshal(params)
	return &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{
			Name:      "analyze_change",
			Arguments: body,
		},
	}
}

func TestHandleAnalyzeChangeRejectsMissingFields(t *testing.T) {
	s := newTestServer(t)
	result, err := s.handleAnalyzeChange(context.Background(), callRequest(map[string]string{"repo_url": "x"}))
	if err != nil {
		t.Fatalf("handler itself should not return a transport error, got %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError=true when required fields are missing")
	}
}

func TestHandleAnalyzeChangeRejectsMalformedJSON(t *testing.T) {
	s := newTestServer(t)
	req := &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Name: "analyze_change", Arguments: []byte("{not json")},
	}
	result, err := s.handleAnalyzeChange(context.Background(), req)
	if err != nil {
		t.Fatalf("handler itself should not return a transport error, got %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError=true for malformed JSON arguments")
	}
}

func TestHandleAnalyzeChangeSurfacesOrchestratorFailureAsToolError(t *testing.T) {
	s := newTestServer(t)
	params := analyzeChangeParams{RepoURL: "/nonexistent/path/that/has/no/git/repo", BaseRef: "main", HeadRef: "feature"}
	result, err := s.handleAnalyzeChange(context.Background(), callRequest(params))
	if err != nil {
		t.Fatalf("handler itself should not return a transport error, got %v", err)
	}
	if !result.IsError {
		t.Fatal("expected IsError=true when the checkout fails")
	}
}
