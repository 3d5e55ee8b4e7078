// Package playout implements Component E: a ticking scheduler that
// drains the jitter buffer into the audio sink once server-domain "now"
// reaches each frame's presentation timestamp, gated on clock
// convergence. Grounded on the teacher repository's
// internal/player/scheduler.go tick loop, generalized to the jitter
// buffer's dedup/late-drop release contract.
package playout

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sendspin-protocol/sendspin-go/pkg/audio"
	"github.com/sendspin-protocol/sendspin-go/pkg/audio/sink"
	"github.com/sendspin-protocol/sendspin-go/pkg/clock"
	"github.com/sendspin-protocol/sendspin-go/pkg/jitter"
)

// TickInterval is the nominal period E runs at, per §4.5.
const TickInterval = 5 * time.Millisecond

const (
	minPlayoutOffsetMS = -1000
	maxPlayoutOffsetMS = 1000
)

// Scheduler drives the periodic release of ready frames from a
// jitter.Buffer to a sink.Sink.
type Scheduler struct {
	mu sync.RWMutex

	logger *zap.Logger
	filter *clock.Filter
	buffer *jitter.Buffer
	sink   sink.Sink

	playoutOffsetMS int64
	paused          bool
	lateDrops       uint64
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithLogger injects a structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithPlayoutOffsetMS sets the initial offset, clamped to [-1000, 1000].
func WithPlayoutOffsetMS(ms int64) Option {
	return func(s *Scheduler) { s.playoutOffsetMS = clampOffset(ms) }
}

func clampOffset(ms int64) int64 {
	if ms < minPlayoutOffsetMS {
		return minPlayoutOffsetMS
	}
	if ms > maxPlayoutOffsetMS {
		return maxPlayoutOffsetMS
	}
	return ms
}

// New constructs a Scheduler over the given clock filter, jitter buffer
// and sink.
func New(filter *clock.Filter, buffer *jitter.Buffer, snk sink.Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		logger: zap.NewNop(),
		filter: filter,
		buffer: buffer,
		sink:   snk,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPlayoutOffsetMS updates the playout offset used by future ticks,
// clamped to [-1000, 1000]. It also updates the jitter buffer's offset
// so insert and release decisions stay consistent, per §4.5.
func (s *Scheduler) SetPlayoutOffsetMS(ms int64) {
	clamped := clampOffset(ms)
	s.mu.Lock()
	s.playoutOffsetMS = clamped
	s.mu.Unlock()
	s.buffer.SetPlayoutOffsetMS(clamped)
}

// PlayoutOffsetMS returns the current offset.
func (s *Scheduler) PlayoutOffsetMS() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playoutOffsetMS
}

// LateDrops reports the total frames popped for playout after their
// window had already elapsed.
func (s *Scheduler) LateDrops() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lateDrops
}

// Run drives the tick loop until ctx is cancelled. It must be called
// from the audio context only; it never blocks on network I/O.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	if !s.filter.HasConverged() {
		// Pre-convergence gate (§4.5): keep the buffer filling but hold
		// PCM writes so a later jump in the filter's estimate never
		// produces an audible artifact.
		s.sink.Pause()
		return
	}

	serverNow := s.filter.ClientToServer(nowLocalUS())
	offset := s.PlayoutOffsetMS()
	// A frame is due once serverNow >= presentation_ts + offset; lateness
	// is judged on the same offset-shifted clock.
	target := serverNow - offset*1000

	onTime, late := s.buffer.PopReady(target, target)

	if len(late) > 0 {
		s.mu.Lock()
		s.lateDrops += uint64(len(late))
		s.mu.Unlock()
		s.logger.Debug("late frames dropped at playout", zap.Int("count", len(late)))
	}

	for _, f := range onTime {
		s.write(f)
	}
}

func (s *Scheduler) write(f audio.DecodedFrame) {
	if err := s.sink.Write(f.PCM); err != nil {
		s.logger.Warn("sink write failed", zap.Error(err))
	}
}

var nowLocalUS = func() int64 {
	return time.Now().UnixMicro()
}
