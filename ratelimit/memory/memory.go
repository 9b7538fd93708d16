// Package memory provides the in-process sliding-window limiter. Suited
// to single-replica deployments; use the redis sibling when the gateway
// runs horizontally scaled.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/entragate/outlook-mcp/ratelimit"
)

const defaultSweepInterval = 5 * time.Minute

// Config for the in-memory limiter. Limit and Window are required.
type Config struct {
	// Limit is the maximum number of requests per key per Window.
	Limit int

	// Window is the trailing window length.
	Window time.Duration

	// SweepInterval controls how often stale entries are evicted.
	// Defaults to 5 minutes.
	SweepInterval time.Duration

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

type entry struct {
	stamps     []time.Time
	lastAccess time.Time
}

// Limiter is the in-memory ratelimit.Limiter. A single mutex guards the
// map; Check and Record are separate critical sections on purpose so
// the documented admission race between concurrent requests for one key
// is preserved rather than serialized away.
type Limiter struct {
	limit         int
	window        time.Duration
	sweepInterval time.Duration
	now           func() time.Time

	mu      sync.Mutex
	entries map[string]*entry

	done      chan struct{}
	closeOnce sync.Once
}

var _ ratelimit.Limiter = (*Limiter)(nil)

// New builds a Limiter and starts its background sweep. The sweep
// goroutine is detached from request handling and exits on Close; it
// never blocks foreground work and never prevents process shutdown.
func New(cfg Config) *Limiter {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	l := &Limiter{
		limit:         cfg.Limit,
		window:        cfg.Window,
		sweepInterval: cfg.SweepInterval,
		now:           cfg.Now,
		entries:       make(map[string]*entry),
		done:          make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Check implements ratelimit.Limiter.
func (l *Limiter) Check(_ context.Context, key string) (ratelimit.Decision, error) {
	now := l.now()
	windowStart := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entries[key]
	if e == nil {
		// Lazy creation, also covering an entry reaped by a concurrent
		// sweep: re-creation on the string key, never a failure.
		e = &entry{}
		l.entries[key] = e
	}
	e.lastAccess = now

	// Prune timestamps that fell out of the window. Amortized O(window
	// size), which is bounded by the per-key limit in practice.
	keep := 0
	for keep < len(e.stamps) && !e.stamps[keep].After(windowStart) {
		keep++
	}
	if keep > 0 {
		e.stamps = append(e.stamps[:0], e.stamps[keep:]...)
	}

	d := ratelimit.Decision{
		Limit:   l.limit,
		Limited: len(e.stamps) >= l.limit,
		Reset:   l.window,
	}
	if rem := l.limit - len(e.stamps); rem > 0 {
		d.Remaining = rem
	}
	if len(e.stamps) > 0 {
		d.Reset = e.stamps[0].Add(l.window).Sub(now)
	}
	return d, nil
}

// Record implements ratelimit.Limiter.
func (l *Limiter) Record(_ context.Context, key string) error {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entries[key]
	if e == nil {
		e = &entry{}
		l.entries[key] = e
	}
	e.stamps = append(e.stamps, now)
	e.lastAccess = now
	return nil
}

// Close stops the background sweep.
func (l *Limiter) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

func (l *Limiter) sweep() {
	t := time.NewTicker(l.sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-t.C:
			l.evict(l.now())
		}
	}
}

// evict removes entries idle beyond twice the window, bounding memory
// under a churning key population.
func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-2 * l.window)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		if e.lastAccess.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}
