package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/alpsla/reviewengine/internal/analyzerclient"
	"github.com/alpsla/reviewengine/internal/checkout"
	"github.com/alpsla/reviewengine/internal/config"
	"github.com/alpsla/reviewengine/internal/mcpserver"
	"github.com/alpsla/reviewengine/internal/orchestrator"
	"github.com/alpsla/reviewengine/internal/rlog"
	"github.com/alpsla/reviewengine/internal/version"
)

func main() {
	app := &cli.App{
		Name:    "reviewengine",
		Usage:   "Adaptive code-review comparison engine",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Project root to load .reviewengine.kdl / reviewengine.toml from",
				Value: ".",
			},
			&cli.StringFlag{
				Name:  "analyzer-url",
				Usage: "Analyzer HTTP endpoint",
				Value: "http://localhost:8787/analyze",
			},
			&cli.StringFlag{
				Name:  "checkout-dir",
				Usage: "Directory to store repository mirrors and worktrees",
				Value: ".reviewengine/checkouts",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable diagnostic logging to stderr",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				rlog.SetOutput(os.Stderr)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "analyze",
				Usage:     "Compare base and head refs of a repository",
				ArgsUsage: "<repo-url> <base-ref> <head-ref>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "sequential",
						Usage: "Collect head after base, folding base's issues into head's do-not-repeat list",
					},
				},
				Action: analyzeCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Start the MCP server with stdio transport",
				Action: mcpCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "reviewengine:", err)
		os.Exit(1)
	}
}

func buildOrchestrator(c *cli.Context) (*orchestrator.Orchestrator, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := checkout.NewProvider(c.String("checkout-dir"))
	if err != nil {
		return nil, fmt.Errorf("checkout provider: %w", err)
	}

	transport := analyzerclient.NewHTTPTransport(c.String("analyzer-url"), &http.Client{
		Timeout: time.Duration(cfg.Timeouts.AnalyzerRequestMs) * time.Millisecond,
	})

	return orchestrator.New(provider, transport, cfg), nil
}

func analyzeCommand(c *cli.Context) error {
	if c.NArg() != 3 {
		return cli.Exit("usage: reviewengine analyze <repo-url> <base-ref> <head-ref>", 1)
	}
	repoURL, baseRef, headRef := c.Args().Get(0), c.Args().Get(1), c.Args().Get(2)

	orch, err := buildOrchestrator(c)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := orch.Analyze(ctx, repoURL, baseRef, headRef, orchestrator.Options{Sequential: c.Bool("sequential")})
	if err != nil {
		return cli.Exit(fmt.Sprintf("analyze failed: %v", err), 1)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func mcpCommand(c *cli.Context) error {
	orch, err := buildOrchestrator(c)
	if err != nil {
		return err
	}

	server := mcpserver.New(orch, "reviewengine-mcp", version.Version)

	ctx, cancel := signalContext()
	defer cancel()

	rlog.Printf("reviewengine: starting MCP server with stdio transport")
	if err := server.Run(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("MCP server error: %v", err), 1)
	}
	return nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, for
// graceful shutdown of long-running commands.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}
