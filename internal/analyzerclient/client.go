package analyzerclient

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/alpsla/reviewengine/internal/cache"
	"github.com/alpsla/reviewengine/internal/rerrors"
)

// Client is the retry/backoff/cache-aware Analyzer caller C5 drives
// (spec §4.4). It wraps a Transport (the actual wire call) and an
// internal/cache.Cache (read-through on hit, write-through on success,
// invalidate on failure).
type Client struct {
	transport Transport
	cache     *cache.Cache
	cfg       Config

	keysMu    sync.Mutex
	usedKeys  map[string]bool
}

// New builds a Client. cfg is typically analyzerclient.DefaultConfig().
func New(transport Transport, c *cache.Cache, cfg Config) *Client {
	return &Client{transport: transport, cache: c, cfg: cfg, usedKeys: map[string]bool{}}
}

// Keys returns every cache key this Client has touched (hit, miss, or
// write) since it was created, in no particular order. The orchestrator
// calls this once the final ComparisonResult has been emitted so it can
// tell the cache those entries are delivered (spec §4.4 "MarkDelivered").
func (c *Client) Keys() []string {
	c.keysMu.Lock()
	defer c.keysMu.Unlock()
	keys := make([]string, 0, len(c.usedKeys))
	for k := range c.usedKeys {
		keys = append(keys, k)
	}
	return keys
}

func (c *Client) trackKey(key string) {
	c.keysMu.Lock()
	c.usedKeys[key] = true
	c.keysMu.Unlock()
}

// Call is the C4 contract: invoke the Analyzer with timeout, retry, and
// exponential backoff, reading/writing through the cache keyed by
// (repoURL, branch, promptClass, promptBody).
func (c *Client) Call(ctx context.Context, repoURL, branch string, class cache.PromptClass, req Request) (interface{}, error) {
	key := cache.Key(repoURL, branch, class, promptBody(req))
	c.trackKey(key)
	if v, ok := c.cache.Get(ctx, key); ok {
		return v, nil
	}

	var lastErr error
	backoff := c.cfg.BackoffInitial

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, rerrors.CancelledError("Call", err)
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.PerRequestTimeout)
		payload, err := c.transport.Call(reqCtx, req)
		cancel()

		if err == nil {
			c.cache.Set(ctx, key, payload, class)
			return payload, nil
		}

		var terr *TransportError
		if errors.As(err, &terr) && !terr.Retryable() {
			c.cache.Invalidate(ctx, key)
			return nil, rerrors.FetchFailed(false, "Call", "non-retryable analyzer response", err)
		}

		lastErr = err
		if attempt == c.cfg.MaxRetries {
			break
		}
		if sleepErr := jitteredSleep(ctx, backoff, c.cfg.BackoffJitter); sleepErr != nil {
			c.cache.Invalidate(ctx, key)
			return nil, rerrors.CancelledError("Call", sleepErr)
		}
		backoff *= 2
		if backoff > c.cfg.BackoffMax {
			backoff = c.cfg.BackoffMax
		}
	}

	c.cache.Invalidate(ctx, key)
	return nil, rerrors.FetchFailed(true, "Call", "retries exhausted", lastErr)
}

// jitteredSleep sleeps for d ± jitter*d, returning early with ctx.Err()
// if ctx is cancelled first (spec P8: cancellation must interrupt an
// in-progress backoff wait, not just a future one).
func jitteredSleep(ctx context.Context, d time.Duration, jitter float64) error {
	delta := time.Duration(float64(d) * jitter * (2*rand.Float64() - 1))
	sleep := d + delta
	if sleep < 0 {
		sleep = 0
	}

	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// promptBody builds a deterministic string from a Request's messages
// for use as the prompt-body component of the cache key.
func promptBody(req Request) string {
	var b strings.Builder
	for _, m := range req.Messages {
		b.WriteString(m.Role)
		b.WriteByte(':')
		b.WriteString(m.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
