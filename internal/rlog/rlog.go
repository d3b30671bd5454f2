// Package rlog is a minimal diagnostic logger for the engine's internal
// retry/convergence/cancellation chatter. It is silent by default; a
// caller opts in with SetOutput. It never carries the Issue or
// ComparisonResult data itself — that travels only as a return value.
package rlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EnableDebug can be flipped at build time with
// -ldflags "-X github.com/alpsla/reviewengine/internal/rlog.EnableDebug=true"
// to send diagnostics to stderr whenever no other output is attached.
var EnableDebug = "false"

var (
	mu     sync.Mutex
	output io.Writer
	file   *os.File
)

// SetOutput sets the writer diagnostics are sent to. Pass nil to disable
// output entirely (the default).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// InitLogFile opens a timestamped log file under os.TempDir() and routes
// diagnostics to it. Returns the path so the caller can surface it.
func InitLogFile() (string, error) {
	mu.Lock()
	defer mu.Unlock()

	dir := filepath.Join(os.TempDir(), "reviewengine-logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create log directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("engine-%s.log", time.Now().Format("2006-01-02T150405")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("open log file: %w", err)
	}

	file = f
	output = f
	return path, nil
}

// Close releases the file opened by InitLogFile, if any.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		_ = file.Close()
		file = nil
		output = nil
	}
}

// Printf writes a formatted diagnostic line if an output is attached,
// or to stderr when EnableDebug is "true". It is a no-op otherwise, so
// call sites never need to guard it.
func Printf(format string, args ...interface{}) {
	mu.Lock()
	w := output
	mu.Unlock()
	if w == nil && EnableDebug == "true" {
		w = os.Stderr
	}
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[%s] %s\n", time.Now().Format(time.RFC3339), fmt.Sprintf(format, args...))
}
