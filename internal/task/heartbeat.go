package task

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// HeartbeatFn is the callback a Heartbeat invokes on each tick, typically a
// scheduler heartbeat write.
type HeartbeatFn func(ctx context.Context) error

// Heartbeat is a self-rescheduling, non-overlapping periodic callback with an
// explicit stop handle. Each tick runs the callback to completion before the
// next tick is armed, so a slow callback can never pile up overlapping
// writes the way a fixed-period ticker would.
//
// Callback errors are logged and swallowed: a missed heartbeat is never
// fatal, it just brings the row closer to the staleness window.
type Heartbeat struct {
	interval time.Duration
	fn       HeartbeatFn
	logger   *slog.Logger

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// StartHeartbeat schedules fn to run every interval and returns the stop
// handle.
func StartHeartbeat(interval time.Duration, fn HeartbeatFn, logger *slog.Logger) *Heartbeat {
	h := &Heartbeat{
		interval: interval,
		fn:       fn,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Heartbeat) loop() {
	defer close(h.done)

	timer := time.NewTimer(h.interval)
	defer timer.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-timer.C:
			h.beat()
			// Re-arm only after the callback finishes.
			timer.Reset(h.interval)
		}
	}
}

func (h *Heartbeat) beat() {
	// Bound each write by the interval so a hung store cannot wedge the loop
	// past its next tick.
	ctx, cancel := context.WithTimeout(context.Background(), h.interval)
	defer cancel()

	if err := h.fn(ctx); err != nil {
		h.logger.Warn("heartbeat update failed", "error", err)
	}
}

// Stop cancels any pending tick and waits for an in-flight callback to
// finish. Safe to call multiple times and concurrently with a running
// callback; it simply prevents the next one.
func (h *Heartbeat) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	<-h.done
}
