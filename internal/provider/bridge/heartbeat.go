package bridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// pinger is the part of the client the heartbeat drives
type pinger interface {
	Ping() error
	TriggerReconnect()
}

// Heartbeat pings the bridge and forces a reconnect when nothing has been
// received for longer than the read timeout
type Heartbeat struct {
	target       pinger
	interval     time.Duration
	readTimeout  time.Duration
	logger       *slog.Logger
	lastReceived atomic.Int64
	timedOut     atomic.Bool
}

// NewHeartbeat creates a heartbeat for target
func NewHeartbeat(target pinger, interval, readTimeout time.Duration, logger *slog.Logger) *Heartbeat {
	h := &Heartbeat{
		target:      target,
		interval:    interval,
		readTimeout: readTimeout,
		logger:      logger,
	}
	h.lastReceived.Store(time.Now().UnixNano())
	return h
}

// Start runs until ctx is cancelled
func (h *Heartbeat) Start(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.check()
		}
	}
}

func (h *Heartbeat) check() {
	elapsed := time.Since(h.LastReceived())
	if elapsed > h.readTimeout {
		if !h.timedOut.Swap(true) {
			h.logger.Warn("Bridge heartbeat timeout, reconnecting",
				"elapsed", elapsed,
				"timeout", h.readTimeout)
		}
		h.target.TriggerReconnect()
		return
	}
	h.timedOut.Store(false)

	if err := h.target.Ping(); err != nil {
		h.logger.Error("Failed to send ping", "error", err)
	}
}

// OnReceived records inbound traffic (frames or pongs)
func (h *Heartbeat) OnReceived() {
	h.lastReceived.Store(time.Now().UnixNano())
}

// LastReceived returns the time of the last inbound traffic
func (h *Heartbeat) LastReceived() time.Time {
	return time.Unix(0, h.lastReceived.Load())
}
