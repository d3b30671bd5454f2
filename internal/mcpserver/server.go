// Package mcpserver exposes the Analysis Orchestrator as a single MCP
// tool, "analyze_change", so an AI assistant can request a base/head
// comparison the same way it would call any other MCP tool. Grounded
// on the teacher's internal/mcp.Server: mcp.NewServer construction,
// AddTool registration with a hand-written jsonschema.Schema, and
// manual json.Unmarshal of req.Params.Arguments into a params struct
// rather than relying on the SDK's generic AddTool binding.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/alpsla/reviewengine/internal/orchestrator"
	"github.com/alpsla/reviewengine/internal/rlog"
)

// Server wraps one *orchestrator.Orchestrator behind an MCP tool.
type Server struct {
	orch   *orchestrator.Orchestrator
	server *mcp.Server
}

// New builds a Server and registers its tools. name/version identify
// this server to MCP clients.
func New(orch *orchestrator.Orchestrator, name, version string) *Server {
	s := &Server{orch: orch}
	s.server = mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	s.registerTools()
	return s
}

// analyzeChangeParams is the analyze_change tool's input.
type analyzeChangeParams struct {
	RepoURL    string `json:"repo_url"`
	BaseRef    string `json:"base_ref"`
	HeadRef    string `json:"head_ref"`
	Sequential bool   `json:"sequential"`
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "analyze_change",
		Description: "Compare base and head refs of a repository for code-review issues: returns new, resolved, and unchanged findings.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"repo_url": {
					Type:        "string",
					Description: "Repository URL or local path to clone/fetch from",
				},
				"base_ref": {
					Type:        "string",
					Description: "Base ref to compare from (e.g. a trunk branch or tag)",
				},
				"head_ref": {
					Type:        "string",
					Description: "Head ref to compare against base (e.g. a pull request branch)",
				},
				"sequential": {
					Type:        "boolean",
					Description: "Collect head after base, folding base's issues into head's do-not-repeat list, instead of collecting both branches concurrently",
				},
			},
			Required: []string{"repo_url", "base_ref", "head_ref"},
		},
	}, s.handleAnalyzeChange)
}

func (s *Server) handleAnalyzeChange(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params analyzeChangeParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return errorResult("analyze_change", fmt.Errorf("invalid parameters: %w", err)), nil
	}
	if params.RepoURL == "" || params.BaseRef == "" || params.HeadRef == "" {
		return errorResult("analyze_change", fmt.Errorf("repo_url, base_ref, and head_ref are all required")), nil
	}

	result, err := s.orch.Analyze(ctx, params.RepoURL, params.BaseRef, params.HeadRef, orchestrator.Options{Sequential: params.Sequential})
	if err != nil {
		rlog.Printf("mcpserver: analyze_change failed for %s %s..%s: %v", params.RepoURL, params.BaseRef, params.HeadRef, err)
		return errorResult("analyze_change", err), nil
	}

	return jsonResult(result)
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal analyze_change result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(content)}},
	}, nil
}

func errorResult(operation string, err error) *mcp.CallToolResult {
	payload, marshalErr := json.Marshal(map[string]interface{}{
		"success":   false,
		"operation": operation,
		"error":     err.Error(),
	})
	if marshalErr != nil {
		payload = []byte(`{"success":false,"error":"failed to marshal error"}`)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
		IsError: true,
	}
}

// Run starts the server over stdio and blocks until ctx is cancelled or
// the transport closes.
func (s *Server) Run(ctx context.Context) error {
	rlog.Printf("mcpserver: starting with stdio transport")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
