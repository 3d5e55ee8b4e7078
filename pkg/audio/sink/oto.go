package sink

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"

	"github.com/sendspin-protocol/sendspin-go/pkg/audio"
	"github.com/sendspin-protocol/sendspin-go/pkg/audio/resample"
)

const writeQueueDepth = 64

// Oto is the default Sink, backed by the oto library. oto only speaks
// 16-bit signed little-endian PCM, so samples arriving at a higher bit
// depth are narrowed before they reach the device.
type Oto struct {
	mu     sync.Mutex
	logger *zap.Logger

	ctx    *oto.Context
	player *oto.Player
	writer *io.PipeWriter
	queue  chan []int32
	done   chan struct{}

	sampleRate int
	channels   int
	volume     int
	muted      bool
	paused     bool
	ready      bool

	// resampler converts a later stream whose rate doesn't match the
	// already-open context, since oto allows only one context per
	// process (§9: sample-rate changes mid-session are legal per §4.6's
	// stream_descriptor updates, but oto cannot reopen its device).
	resampler *resample.Resampler
}

// NewOto constructs an unopened Oto sink.
func NewOto(logger *zap.Logger) *Oto {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oto{logger: logger, volume: 100}
}

func (o *Oto) Open(sampleRateHz, channels, bitDepth int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if bitDepth != 16 {
		o.logger.Debug("narrowing to 16-bit for oto", zap.Int("requested_bit_depth", bitDepth))
	}

	if o.ctx != nil && o.sampleRate == sampleRateHz && o.channels == channels {
		o.resampler = nil
		return nil
	}
	if o.ctx != nil {
		if channels != o.channels {
			o.logger.Warn("format change with differing channel count requested but oto allows only one context per process",
				zap.Int("old_channels", o.channels), zap.Int("new_channels", channels))
			return nil
		}
		o.logger.Info("resampling stream to match the already-open sink",
			zap.Int("stream_rate", sampleRateHz), zap.Int("sink_rate", o.sampleRate))
		o.resampler = resample.New(sampleRateHz, o.sampleRate, channels)
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRateHz,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("open oto context: %w", err)
	}
	<-ready

	reader, writer := io.Pipe()
	o.ctx = ctx
	o.writer = writer
	o.sampleRate = sampleRateHz
	o.channels = channels
	o.player = ctx.NewPlayer(reader)
	o.player.Play()
	o.queue = make(chan []int32, writeQueueDepth)
	o.done = make(chan struct{})
	o.ready = true
	o.paused = false

	go o.pump()

	o.logger.Info("audio sink opened", zap.Int("sample_rate", sampleRateHz), zap.Int("channels", channels))
	return nil
}

// pump drains the queue into the pipe on its own goroutine so Write never
// blocks the audio context on device I/O.
func (o *Oto) pump() {
	for {
		select {
		case samples, ok := <-o.queue:
			if !ok {
				return
			}
			o.writeSamples(samples)
		case <-o.done:
			return
		}
	}
}

func (o *Oto) writeSamples(samples []int32) {
	o.mu.Lock()
	volume, muted, paused, writer := o.volume, o.muted, o.paused, o.writer
	o.mu.Unlock()

	if paused || writer == nil {
		return
	}

	scaled := applyVolume(samples, volume, muted)
	out := make([]byte, len(scaled)*2)
	for i, s := range scaled {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(audio.SampleToInt16(s)))
	}
	if _, err := writer.Write(out); err != nil {
		o.logger.Warn("sink write failed", zap.Error(err))
	}
}

func (o *Oto) Write(samples []int32) error {
	o.mu.Lock()
	// A write after Pause resumes playback.
	o.paused = false
	ready, queue, channels, resampler := o.ready, o.queue, o.channels, o.resampler
	o.mu.Unlock()

	if !ready {
		return fmt.Errorf("sink write: not open")
	}

	if resampler != nil {
		out := make([]int32, resampler.OutputSamplesNeeded(len(samples))+channels)
		n := resampler.Resample(samples, out)
		samples = out[:n]
	}

	select {
	case queue <- samples:
		return nil
	default:
		o.logger.Warn("sink write queue full, dropping buffer")
		return nil
	}
}

func (o *Oto) Pause() error {
	o.mu.Lock()
	o.paused = true
	o.mu.Unlock()
	return nil
}

func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.done != nil {
		close(o.done)
	}
	if o.writer != nil {
		o.writer.Close()
		o.writer = nil
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.ctx != nil {
		o.ctx.Suspend()
	}
	o.ready = false
	o.resampler = nil
	return nil
}

func (o *Oto) VolumeGet() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.volume
}

func (o *Oto) VolumeSet(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	o.mu.Lock()
	o.volume = volume
	o.mu.Unlock()
}

func (o *Oto) MuteGet() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted
}

func (o *Oto) MuteSet(muted bool) {
	o.mu.Lock()
	o.muted = muted
	o.mu.Unlock()
}

func applyVolume(samples []int32, volume int, muted bool) []int32 {
	multiplier := float64(volume) / 100.0
	if muted {
		multiplier = 0.0
	}

	out := make([]int32, len(samples))
	for i, s := range samples {
		scaled := int64(float64(s) * multiplier)
		if scaled > audio.Max24Bit {
			scaled = audio.Max24Bit
		} else if scaled < audio.Min24Bit {
			scaled = audio.Min24Bit
		}
		out[i] = int32(scaled)
	}
	return out
}
