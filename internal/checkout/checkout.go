// Package checkout implements the repository checkout provider (spec
// §6.2): producing a stable, working-tree filesystem snapshot of a repo
// at a ref, for the Repository Indexer to walk. Grounded on the
// teacher's internal/git.Provider: exec.Command("git", ...) wrapping,
// cmd.Dir set to the resolved repo root, errors wrapped with context.
package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alpsla/reviewengine/internal/rerrors"
	"github.com/alpsla/reviewengine/internal/rlog"
)

// Provider produces working-tree checkouts under a base directory,
// reusing a single bare mirror clone per repoURL and one worktree per
// (repoURL, ref) pair (spec §6.2: "idempotent, may reuse a cached
// working tree").
type Provider struct {
	baseDir string

	mu     sync.Mutex
	leases map[string]int // localPath -> outstanding lease count
}

// NewProvider returns a Provider that stores its mirrors and worktrees
// under baseDir, creating it if necessary.
func NewProvider(baseDir string) (*Provider, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, rerrors.IndexIOError(baseDir, err)
	}
	return &Provider{baseDir: baseDir, leases: map[string]int{}}, nil
}

// Checkout returns the local path of a working-tree snapshot of
// repoURL at ref. The mirror is cloned the first time repoURL is seen
// and fetched on every call; a worktree is added only the first time
// this (repoURL, ref) pair is requested.
func (p *Provider) Checkout(ctx context.Context, repoURL, ref string) (string, error) {
	repoKey := hashKey(repoURL)
	repoDir := filepath.Join(p.baseDir, repoKey)
	mirrorDir := filepath.Join(repoDir, "mirror.git")
	worktreeDir := filepath.Join(repoDir, "wt-"+sanitizeRef(ref))

	if err := p.ensureMirror(ctx, repoURL, mirrorDir); err != nil {
		return "", err
	}

	p.mu.Lock()
	_, leased := p.leases[worktreeDir]
	p.mu.Unlock()

	if leased || dirExists(worktreeDir) {
		p.mu.Lock()
		p.leases[worktreeDir]++
		p.mu.Unlock()
		rlog.Printf("checkout: reusing existing worktree %s for %s@%s", worktreeDir, repoURL, ref)
		return worktreeDir, nil
	}

	if err := runGit(ctx, mirrorDir, "worktree", "add", "--detach", worktreeDir, ref); err != nil {
		return "", rerrors.IndexIOError(repoURL, fmt.Errorf("worktree add failed for ref %q: %w", ref, err))
	}
	p.mu.Lock()
	p.leases[worktreeDir] = 1
	p.mu.Unlock()

	return worktreeDir, nil
}

// Release drops one lease on a checkout produced by Checkout. The
// working tree itself is left on disk for reuse (spec §6.2); Release
// only tracks outstanding consumers so a future cleanup pass could
// reclaim unleased worktrees.
func (p *Provider) Release(localPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	count, ok := p.leases[localPath]
	if !ok {
		return rerrors.New(rerrors.TypeInternal, "Release", "unknown checkout path: "+localPath, nil)
	}
	if count <= 1 {
		delete(p.leases, localPath)
		return nil
	}
	p.leases[localPath] = count - 1
	return nil
}

// ensureMirror clones repoURL as a bare mirror the first time it is
// seen, and fetches fresh refs on every subsequent call so new refs
// (a newly pushed branch) become checkout-able.
func (p *Provider) ensureMirror(ctx context.Context, repoURL, mirrorDir string) error {
	if dirExists(mirrorDir) {
		if err := runGit(ctx, mirrorDir, "fetch", "--all", "--prune"); err != nil {
			return rerrors.IndexIOError(repoURL, fmt.Errorf("fetch failed: %w", err))
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(mirrorDir), 0755); err != nil {
		return rerrors.IndexIOError(repoURL, err)
	}
	if err := runGit(ctx, "", "clone", "--mirror", repoURL, mirrorDir); err != nil {
		return rerrors.IndexIOError(repoURL, fmt.Errorf("mirror clone failed: %w", err))
	}
	return nil
}

func runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func hashKey(repoURL string) string {
	sum := sha256.Sum256([]byte(repoURL))
	return hex.EncodeToString(sum[:])[:16]
}

func sanitizeRef(ref string) string {
	return strings.NewReplacer("/", "-", "\\", "-", ":", "-").Replace(ref)
}
