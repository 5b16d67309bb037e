// Package backoff provides jittered exponential delays for transport
// reopen attempts.
//
// The supervisor uses one Backoff per transport: each failed open advances
// the delay (1s, 2s, 4s, ... capped at 60s by default), a successful open
// resets it. Jitter spreads reopen attempts when several supervisors share
// a flaky peer.
package backoff

import (
	"math/rand"
	"sync"
	"time"
)

// Default backoff parameters.
const (
	DefaultInitial    = 1 * time.Second
	DefaultMax        = 60 * time.Second
	DefaultMultiplier = 2.0
	DefaultJitter     = 0.25
)

// Config sets the backoff parameters. Zero fields take defaults.
type Config struct {
	// Initial is the first delay.
	Initial time.Duration

	// Max caps the delay growth.
	Max time.Duration

	// Multiplier is the per-attempt growth factor (> 1).
	Multiplier float64

	// Jitter is the maximum random extension as a fraction of the base
	// delay (0 disables jitter).
	Jitter float64
}

// DefaultConfig returns the default backoff parameters.
func DefaultConfig() Config {
	return Config{
		Initial:    DefaultInitial,
		Max:        DefaultMax,
		Multiplier: DefaultMultiplier,
		Jitter:     DefaultJitter,
	}
}

// Backoff computes successive jittered delays. Safe for concurrent use.
type Backoff struct {
	mu       sync.Mutex
	cfg      Config
	current  time.Duration
	attempts int
	rng      *rand.Rand
}

// New creates a Backoff, filling zero config fields with defaults.
func New(cfg Config) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = DefaultInitial
	}
	if cfg.Max <= 0 {
		cfg.Max = DefaultMax
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = DefaultMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	return &Backoff{
		cfg:     cfg,
		current: cfg.Initial,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the jittered delay for this attempt and advances the base
// delay toward Max.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.jittered(b.current)
	b.attempts++

	next := time.Duration(float64(b.current) * b.cfg.Multiplier)
	if next > b.cfg.Max {
		next = b.cfg.Max
	}
	b.current = next

	return delay
}

// Peek returns the delay Next would use without advancing.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jittered(b.current)
}

// Reset restores the initial delay. Call after a successful open.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.cfg.Initial
	b.attempts = 0
}

// Attempts returns the number of Next calls since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

func (b *Backoff) jittered(d time.Duration) time.Duration {
	if b.cfg.Jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.cfg.Jitter*b.rng.Float64())
}
