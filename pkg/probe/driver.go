// Package probe implements Component B: the periodic NTP-style probe
// driver that feeds round-trip measurements to the clock filter (A).
// Grounded on the teacher repository's clock-sync loop
// (internal/sync package, now superseded) generalized to the spec's
// adaptive probe interval and outstanding-probe bookkeeping.
package probe

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sendspin-protocol/sendspin-go/pkg/clock"
)

// IntervalUnconverged is how often probes fire before the filter has
// converged.
const IntervalUnconverged = 1000 * time.Millisecond

// IntervalConverged is how often probes fire once the filter has
// converged.
const IntervalConverged = 5000 * time.Millisecond

// Timeout is how long an outstanding probe is kept before being
// discarded as stale.
const Timeout = 3000 * time.Millisecond

// Sender transmits a time_probe carrying t0 (local µs). Implemented by
// the session's transport.
type Sender func(t0US int64) error

// Driver issues probes on an adaptive interval and resolves responses
// against the probes it sent.
type Driver struct {
	logger *zap.Logger
	filter *clock.Filter
	send   Sender

	nowLocalUS func() int64

	mu      sync.Mutex
	pending map[int64]time.Time // t0 -> local send time
}

// Option configures a Driver at construction.
type Option func(*Driver)

// WithLogger injects a structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// New constructs a Driver over the given clock filter, transmitting
// probes through send.
func New(filter *clock.Filter, send Sender, opts ...Option) *Driver {
	d := &Driver{
		logger:     zap.NewNop(),
		filter:     filter,
		send:       send,
		nowLocalUS: func() int64 { return time.Now().UnixMicro() },
		pending:    make(map[int64]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run drives the adaptive probe loop until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) {
	for {
		interval := IntervalUnconverged
		if d.filter.HasConverged() {
			interval = IntervalConverged
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			d.fire()
		}
	}
}

func (d *Driver) fire() {
	t0 := d.nowLocalUS()

	d.mu.Lock()
	d.pending[t0] = time.Now()
	d.mu.Unlock()

	if err := d.send(t0); err != nil {
		d.logger.Debug("probe send failed", zap.Error(err))
		d.mu.Lock()
		delete(d.pending, t0)
		d.mu.Unlock()
	}

	d.expireStale()
}

// HandleResponse resolves a time_probe_response carrying the echoed t0
// and the server's s1/s2, applying the measurement to the filter unless
// the matching probe is unknown or has gone stale.
func (d *Driver) HandleResponse(t0, s1, s2 int64) {
	d.mu.Lock()
	sentAt, ok := d.pending[t0]
	if ok {
		delete(d.pending, t0)
	}
	d.mu.Unlock()

	if !ok {
		d.logger.Debug("probe response for unknown or already-resolved t0", zap.Int64("t0_us", t0))
		return
	}
	if time.Since(sentAt) > Timeout {
		d.logger.Debug("discarding stale probe response", zap.Int64("t0_us", t0))
		return
	}

	t3 := d.nowLocalUS()
	d.filter.OnServerTime(t0, s1, s2, t3)
}

func (d *Driver) expireStale() {
	cutoff := time.Now().Add(-Timeout)

	d.mu.Lock()
	defer d.mu.Unlock()
	for t0, sentAt := range d.pending {
		if sentAt.Before(cutoff) {
			delete(d.pending, t0)
		}
	}
}

// PendingCount reports the number of outstanding (unresolved) probes.
func (d *Driver) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
