package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// KDLFileName is the primary config file name, following the teacher's
// ".lci.kdl at project root" convention.
const KDLFileName = ".reviewengine.kdl"

// LoadKDL loads ".reviewengine.kdl" from projectRoot if it exists. A
// missing file is not an error — it returns (nil, nil) so the caller
// falls back to Default().
func LoadKDL(projectRoot string) (*Config, error) {
	path := filepath.Join(projectRoot, KDLFileName)
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", KDLFileName, err)
	}
	return parseKDL(string(content))
}

func parseKDL(content string) (*Config, error) {
	cfg := Default()

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "collection":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "min_iterations":
					if v, ok := firstIntArg(cn); ok {
						cfg.Collection.MinIterations = v
					}
				case "max_iterations":
					if v, ok := firstIntArg(cn); ok {
						cfg.Collection.MaxIterations = v
					}
				case "stable_window":
					if v, ok := firstIntArg(cn); ok {
						cfg.Collection.StableWindow = v
					}
				}
			}
		case "timeouts":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "per_iteration_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Timeouts.PerIterationMs = v
					}
				case "analyzer_request_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Timeouts.AnalyzerRequestMs = v
					}
				case "overall_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Timeouts.OverallMs = v
					}
				}
			}
		case "retry":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_retries":
					if v, ok := firstIntArg(cn); ok {
						cfg.Retry.MaxRetries = v
					}
				case "backoff_init_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Retry.BackoffInitMs = v
					}
				case "backoff_max_ms":
					if v, ok := firstIntArg(cn); ok {
						cfg.Retry.BackoffMaxMs = v
					}
				case "backoff_jitter":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Retry.BackoffJitter = v
					}
				}
			}
		case "concurrency":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "branch_parallelism":
					if v, ok := firstIntArg(cn); ok {
						cfg.Concurrency.BranchParallelism = v
					}
				case "analyzer_concurrency":
					if v, ok := firstIntArg(cn); ok {
						cfg.Concurrency.AnalyzerConcurrency = v
					}
				}
			}
		case "index":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "file_size_cap_bytes":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.FileSizeCapBytes = int64(v)
					}
				case "snippet_group_min":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.SnippetGroupMin = v
					}
				case "snippet_group_max":
					if v, ok := firstIntArg(cn); ok {
						cfg.Index.SnippetGroupMax = v
					}
				}
			}
		case "cache":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "capacity_entries":
					if v, ok := firstIntArg(cn); ok {
						cfg.Cache.CapacityEntries = v
					}
				case "ttl_seconds_comprehensive":
					if v, ok := firstIntArg(cn); ok {
						cfg.Cache.TTLSecondsComprehensive = v
					}
				case "ttl_seconds_gap_fill":
					if v, ok := firstIntArg(cn); ok {
						cfg.Cache.TTLSecondsGapFill = v
					}
				}
			}
		}
	}

	return cfg, nil
}

// nodeName and the firstXArg helpers below follow the teacher's
// kdl_config.go pattern for walking the kdl-go document model.
func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
