package analyzerclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpsla/reviewengine/internal/cache"
	"github.com/alpsla/reviewengine/internal/rerrors"
)

type scriptedTransport struct {
	calls   int
	results []interface{}
	errs    []error
}

func (t *scriptedTransport) Call(ctx context.Context, req Request) (interface{}, error) {
	i := t.calls
	t.calls++
	if i < len(t.errs) && t.errs[i] != nil {
		return nil, t.errs[i]
	}
	if i < len(t.results) {
		return t.results[i], nil
	}
	return nil, errors.New("scriptedTransport: ran out of script")
}

func fastConfig() Config {
	return Config{
		PerRequestTimeout: time.Second,
		MaxRetries:        5,
		BackoffInitial:    time.Millisecond,
		BackoffMax:        5 * time.Millisecond,
		BackoffJitter:     0,
	}
}

func TestClientRetriesTransientFailureThenSucceeds(t *testing.T) {
	transport := &scriptedTransport{
		errs: []error{
			&TransportError{Category: StatusServerError, Err: errors.New("503")},
			&TransportError{Category: StatusTimeout, Err: errors.New("timeout")},
		},
		results: []interface{}{nil, nil, "ok"},
	}
	c := New(transport, cache.New(cache.DefaultCapacity, nil, 0, 0), fastConfig())

	result, err := c.Call(context.Background(), "repo", "main", cache.PromptComprehensive, Request{})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if result.(string) != "ok" {
		t.Errorf("expected payload 'ok', got %v", result)
	}
	if transport.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", transport.calls)
	}
}

func TestClientDoesNotRetryClientError(t *testing.T) {
	transport := &scriptedTransport{
		errs: []error{&TransportError{Category: StatusClientError, Err: errors.New("400")}},
	}
	c := New(transport, cache.New(cache.DefaultCapacity, nil, 0, 0), fastConfig())

	_, err := c.Call(context.Background(), "repo", "main", cache.PromptComprehensive, Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	var engErr *rerrors.EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("expected *rerrors.EngineError, got %T", err)
	}
	if engErr.Type != rerrors.TypePermanentProtocol {
		t.Errorf("expected TypePermanentProtocol, got %s", engErr.Type)
	}
	if transport.calls != 1 {
		t.Errorf("expected exactly 1 attempt for a 4xx, got %d", transport.calls)
	}
}

func TestClientExhaustsRetriesOnPersistentFailure(t *testing.T) {
	transport := &scriptedTransport{
		errs: []error{
			&TransportError{Category: StatusServerError, Err: errors.New("1")},
			&TransportError{Category: StatusServerError, Err: errors.New("2")},
			&TransportError{Category: StatusServerError, Err: errors.New("3")},
			&TransportError{Category: StatusServerError, Err: errors.New("4")},
			&TransportError{Category: StatusServerError, Err: errors.New("5")},
		},
	}
	c := New(transport, cache.New(cache.DefaultCapacity, nil, 0, 0), fastConfig())

	_, err := c.Call(context.Background(), "repo", "main", cache.PromptComprehensive, Request{})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	var engErr *rerrors.EngineError
	if !errors.As(err, &engErr) || engErr.Type != rerrors.TypeTransientNetwork {
		t.Fatalf("expected TypeTransientNetwork EngineError, got %v", err)
	}
	if transport.calls != 5 {
		t.Errorf("expected exactly maxRetries=5 attempts, got %d", transport.calls)
	}
}

func TestClientCacheHitAvoidsSecondTransportCall(t *testing.T) {
	transport := &scriptedTransport{results: []interface{}{"first"}}
	c := New(transport, cache.New(cache.DefaultCapacity, nil, 0, 0), fastConfig())
	req := Request{Messages: []Message{{Role: "user", Text: "analyze"}}}

	r1, err := c.Call(context.Background(), "repo", "main", cache.PromptComprehensive, req)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := c.Call(context.Background(), "repo", "main", cache.PromptComprehensive, req)
	if err != nil {
		t.Fatal(err)
	}
	if r1.(string) != r2.(string) {
		t.Errorf("expected byte-identical cached responses, got %v vs %v", r1, r2)
	}
	if transport.calls != 1 {
		t.Errorf("expected cache hit to avoid a second transport call, got %d calls", transport.calls)
	}
}

func TestClientReturnsImmediatelyWhenAlreadyCancelled(t *testing.T) {
	transport := &scriptedTransport{results: []interface{}{"unused"}}
	c := New(transport, cache.New(cache.DefaultCapacity, nil, 0, 0), fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Call(ctx, "repo", "main", cache.PromptComprehensive, Request{})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	var engErr *rerrors.EngineError
	if !errors.As(err, &engErr) || engErr.Type != rerrors.TypeCancelled {
		t.Fatalf("expected TypeCancelled EngineError, got %v", err)
	}
	if transport.calls != 0 {
		t.Errorf("expected transport never called once ctx is already cancelled, got %d calls", transport.calls)
	}
}
