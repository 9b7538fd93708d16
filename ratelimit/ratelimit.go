// Package ratelimit defines the sliding-window request limiter used to
// guard the gateway's authenticated MCP boundary (keyed by user
// identity) and its unauthenticated registration endpoint (keyed by
// client address). Two sibling implementations exist: memory (single
// replica) and redis (shared across replicas).
package ratelimit

import (
	"context"
	"time"
)

// Decision reports the outcome of a Check.
type Decision struct {
	// Limited is true when the key has already consumed its full limit
	// within the trailing window.
	Limited bool

	// Limit is the configured ceiling for the window.
	Limit int

	// Remaining is how many further requests the key may make now.
	Remaining int

	// Reset is the time until the oldest retained request exits the
	// window; the full window length when the key is idle.
	Reset time.Duration
}

// Limiter counts requests per key over a trailing window, retaining
// exact timestamps (sliding window log, not fixed buckets).
//
// Callers must Check first and Record only when not limited, in that
// order, so a rejected request never consumes quota. Check and Record
// from two in-flight requests for the same key may interleave
// (check, check, record, record), transiently admitting one request
// over the limit under a concurrent burst. That is an accepted
// simplicity/throughput trade-off, not a bug to lock away.
type Limiter interface {
	// Check prunes expired timestamps for key and reports whether the
	// key is currently limited. The entry is created lazily.
	Check(ctx context.Context, key string) (Decision, error)

	// Record counts one admitted request against key. It neither prunes
	// nor enforces the limit.
	Record(ctx context.Context, key string) error

	// Close releases background resources. Safe to call more than once.
	Close() error
}
