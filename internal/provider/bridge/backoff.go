package bridge

import (
	"sync"
	"time"
)

// BackoffConfig controls reconnection pacing
type BackoffConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration // default 32x InitialInterval
	MaxAttempts     int           // 0 = unlimited
	Multiplier      float64       // default 2
}

// Backoff hands out exponentially growing reconnect delays
type Backoff struct {
	cfg      BackoffConfig
	mu       sync.Mutex
	attempts int
	interval time.Duration
}

// NewBackoff creates a Backoff, filling zero fields with defaults
func NewBackoff(cfg BackoffConfig) *Backoff {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 2 * time.Second
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = cfg.InitialInterval * 32
	}
	return &Backoff{cfg: cfg, interval: cfg.InitialInterval}
}

// Next returns the delay before the next attempt, or false once
// MaxAttempts is exhausted
func (b *Backoff) Next() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.MaxAttempts > 0 && b.attempts >= b.cfg.MaxAttempts {
		return 0, false
	}
	b.attempts++

	current := b.interval
	next := time.Duration(float64(b.interval) * b.cfg.Multiplier)
	if next > b.cfg.MaxInterval {
		next = b.cfg.MaxInterval
	}
	b.interval = next
	return current, true
}

// Attempts returns the attempts handed out since the last Reset
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Reset restarts the sequence after a successful connection
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts = 0
	b.interval = b.cfg.InitialInterval
}
