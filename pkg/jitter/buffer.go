// Package jitter implements the ordered frame queue of Component D: an
// ascending-timestamp priority queue of decoded audio frames with
// dedup and late-drop semantics, keyed by presentation timestamp, in
// the style of the teacher repository's container/heap-based buffer
// queue (internal/player/scheduler.go) generalized to server-domain
// timestamps.
package jitter

import (
	"container/heap"
	"sync"

	"go.uber.org/zap"

	"github.com/sendspin-protocol/sendspin-go/pkg/audio"
)

const defaultMaxQueued = 2000 / 5 // 2000ms of buffer-ahead at ~5ms frames

// Stats is the snapshot BufferStats needs from the jitter buffer.
type Stats struct {
	QueuedChunks  int
	BufferAheadMS int64
	LateDrops     uint64
}

// frameHeap is a min-heap on PresentationTSServerUS.
type frameHeap []audio.DecodedFrame

func (h frameHeap) Len() int { return len(h) }
func (h frameHeap) Less(i, j int) bool {
	return h[i].PresentationTSServerUS < h[j].PresentationTSServerUS
}
func (h frameHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *frameHeap) Push(x any) {
	*h = append(*h, x.(audio.DecodedFrame))
}

func (h *frameHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Buffer is the jitter-buffered, ascending-timestamp queue described in
// §4.4. Insert enforces the late-drop and dedup policy; Pop releases
// frames to the playout scheduler in ascending order.
type Buffer struct {
	mu     sync.Mutex
	logger *zap.Logger

	heap      frameHeap
	seen      map[int64]struct{}
	maxQueued int

	playoutOffsetMS int64
	lateDrops       uint64
}

// Option configures a Buffer at construction.
type Option func(*Buffer)

// WithMaxQueued overrides the default bound on queued frames.
func WithMaxQueued(n int) Option {
	return func(b *Buffer) { b.maxQueued = n }
}

// WithLogger injects a structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Buffer) { b.logger = l }
}

// WithPlayoutOffsetMS sets the initial playout offset participating in
// the insert-time lateness check.
func WithPlayoutOffsetMS(ms int64) Option {
	return func(b *Buffer) { b.playoutOffsetMS = ms }
}

// New constructs an empty Buffer. Callers supply server-domain "now" on
// every Insert/PopReady/Stats call, keeping the buffer itself
// clock-agnostic.
func New(opts ...Option) *Buffer {
	b := &Buffer{
		logger:    zap.NewNop(),
		heap:      make(frameHeap, 0),
		seen:      make(map[int64]struct{}),
		maxQueued: defaultMaxQueued,
	}
	for _, opt := range opts {
		opt(b)
	}
	heap.Init(&b.heap)
	return b
}

// SetPlayoutOffsetMS updates the offset used by future inserts.
func (b *Buffer) SetPlayoutOffsetMS(ms int64) {
	b.mu.Lock()
	b.playoutOffsetMS = ms
	b.mu.Unlock()
}

// Insert applies the insert policy from §4.4: drop frames already late
// relative to server_now + playout_offset, drop duplicate timestamps,
// otherwise insert in ascending order.
func (b *Buffer) Insert(f audio.DecodedFrame, serverNowUS int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := f.PresentationTSServerUS + b.playoutOffsetMS*1000
	if cutoff < serverNowUS {
		b.lateDrops++
		b.logger.Debug("dropping late frame on insert",
			zap.Int64("presentation_ts_server_us", f.PresentationTSServerUS),
			zap.Int64("server_now_us", serverNowUS))
		return
	}

	if _, dup := b.seen[f.PresentationTSServerUS]; dup {
		b.logger.Debug("dropping duplicate presentation timestamp",
			zap.Int64("presentation_ts_server_us", f.PresentationTSServerUS))
		return
	}

	if len(b.heap) >= b.maxQueued {
		b.logger.Warn("jitter buffer full, dropping oldest frame", zap.Int("max_queued", b.maxQueued))
		oldest := heap.Pop(&b.heap).(audio.DecodedFrame)
		delete(b.seen, oldest.PresentationTSServerUS)
	}

	heap.Push(&b.heap, f)
	b.seen[f.PresentationTSServerUS] = struct{}{}
}

// PopReady pops and returns every frame whose presentation timestamp is
// at or before target (server-domain), in ascending order, per §4.5's
// release condition. lateDrops counts frames popped after their
// playback window has already fully elapsed (f.PresentationTSServerUS +
// f.DurationUS < serverNowUS); those are returned separately so callers
// can skip writing them to the sink.
func (b *Buffer) PopReady(target, serverNowUS int64) (onTime, late []audio.DecodedFrame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.heap) > 0 && b.heap[0].PresentationTSServerUS <= target {
		f := heap.Pop(&b.heap).(audio.DecodedFrame)
		delete(b.seen, f.PresentationTSServerUS)

		if f.PresentationTSServerUS+f.DurationUS < serverNowUS {
			b.lateDrops++
			late = append(late, f)
			continue
		}
		onTime = append(onTime, f)
	}
	return onTime, late
}

// Stats reports the derived statistics from §4.4: queued_chunks and
// buffer_ahead_ms, computed against the given server-domain now.
func (b *Buffer) Stats(serverNowUS int64) Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	ahead := int64(0)
	if len(b.heap) > 0 {
		last := b.lastLocked()
		remaining := (last.PresentationTSServerUS + last.DurationUS) - serverNowUS
		if remaining > 0 {
			ahead = remaining / 1000
		}
	}

	return Stats{
		QueuedChunks:  len(b.heap),
		BufferAheadMS: ahead,
		LateDrops:     b.lateDrops,
	}
}

// lastLocked returns the frame with the greatest presentation timestamp.
// Must be called with mu held.
func (b *Buffer) lastLocked() audio.DecodedFrame {
	last := b.heap[0]
	for _, f := range b.heap {
		if f.PresentationTSServerUS > last.PresentationTSServerUS {
			last = f
		}
	}
	return last
}

// Len reports the number of queued frames.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.heap)
}
