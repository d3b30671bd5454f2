package analyzerclient

import "time"

// Config holds the retry/backoff/timeout knobs of spec §4.4 / §6.5.
type Config struct {
	PerRequestTimeout time.Duration
	MaxRetries        int
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	BackoffJitter     float64 // fraction, e.g. 0.2 for ±20%
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{
		PerRequestTimeout: 120 * time.Second,
		MaxRetries:        5,
		BackoffInitial:    500 * time.Millisecond,
		BackoffMax:        15 * time.Second,
		BackoffJitter:     0.2,
	}
}
