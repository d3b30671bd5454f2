// Package rerrors defines the typed error taxonomy the engine surfaces
// to its caller (spec §7): typed structs rather than sentinel values, so
// a caller can switch on Type or use errors.As to recover context.
package rerrors

import (
	"fmt"
	"time"
)

// Type classifies an error for caller-side routing and metadata.
type Type string

const (
	// TypeTransientNetwork covers timeouts, connection refusal, and 5xx
	// responses from the Analyzer after retries are exhausted.
	TypeTransientNetwork Type = "transient_network"
	// TypePermanentProtocol covers 4xx responses and malformed status
	// that retrying would never fix.
	TypePermanentProtocol Type = "permanent_protocol"
	// TypeIndexIO covers a repository root that is unreadable or
	// fundamentally unsupported.
	TypeIndexIO Type = "index_io"
	// TypeCancelled covers an externally requested stop.
	TypeCancelled Type = "cancelled"
	// TypeInternal is a catch-all for invariant violations.
	TypeInternal Type = "internal"
)

// EngineError is the error type every public engine entry point returns.
// It always carries a category and a human-readable detail, per spec §7
// ("every failure carries a category and a human-readable detail").
type EngineError struct {
	Type       Type
	Operation  string
	Detail     string
	Underlying error
	Timestamp  time.Time
}

// New constructs an EngineError, stamping the current time.
func New(t Type, op, detail string, underlying error) *EngineError {
	return &EngineError{
		Type:       t,
		Operation:  op,
		Detail:     detail,
		Underlying: underlying,
		Timestamp:  time.Now(),
	}
}

func (e *EngineError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s failed: %v", e.Type, e.Operation, e.Underlying)
	}
	return fmt.Sprintf("%s: %s failed: %s: %v", e.Type, e.Operation, e.Detail, e.Underlying)
}

// Unwrap exposes the underlying error for errors.Is/errors.As.
func (e *EngineError) Unwrap() error {
	return e.Underlying
}

// IsRetryable reports whether this class of failure is worth retrying at
// the C4 connection layer. Only transient network failures are.
func (e *EngineError) IsRetryable() bool {
	return e.Type == TypeTransientNetwork
}

// FetchFailed wraps a C4 failure (after retries, for transient; or
// immediately, for permanent) in the shape C5/C7 expect to inspect.
func FetchFailed(transient bool, op, detail string, underlying error) *EngineError {
	t := TypePermanentProtocol
	if transient {
		t = TypeTransientNetwork
	}
	return New(t, op, detail, underlying)
}

// IndexIOError wraps a failure to read the repository root itself.
func IndexIOError(root string, underlying error) *EngineError {
	return New(TypeIndexIO, "BuildIndex", "repository root unreadable: "+root, underlying)
}

// CancelledError wraps a caller-requested cancellation.
func CancelledError(op string, underlying error) *EngineError {
	return New(TypeCancelled, op, "cancelled", underlying)
}

// PartialFailureDetail is not itself an error — §7 treats PartialFailure
// as a non-fatal outcome recorded in ComparisonResult.Metadata, never as
// the function's returned error. It is defined here so the orchestrator
// and its callers share one vocabulary for it.
type PartialFailureDetail struct {
	Branch   string
	Category Type
	Detail   string
}
