package session

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sendspin-protocol/sendspin-go/internal/sendspinerr"
	"github.com/sendspin-protocol/sendspin-go/pkg/audio"
	"github.com/sendspin-protocol/sendspin-go/pkg/audio/decode"
	"github.com/sendspin-protocol/sendspin-go/pkg/protocol"
)

// chunkDecoder is Component C: it decodes each inbound media frame to
// PCM using the decoder matching the active stream descriptor's codec,
// and annotates the result with its server-domain presentation
// timestamp, per §4.3.
type chunkDecoder struct {
	logger *zap.Logger

	mu         sync.Mutex
	decoder    decode.Decoder
	descriptor audio.StreamDescriptor
}

func newChunkDecoder(logger *zap.Logger) *chunkDecoder {
	return &chunkDecoder{logger: logger}
}

// setStream installs the decoder for a newly announced stream
// descriptor, closing whatever decoder was active before.
func (c *chunkDecoder) setStream(desc audio.StreamDescriptor, codecHeader []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.decoder != nil {
		_ = c.decoder.Close()
		c.decoder = nil
	}

	dec, err := decode.New(audio.Format{
		Codec:       desc.Codec,
		SampleRate:  desc.SampleRateHz,
		Channels:    desc.Channels,
		BitDepth:    desc.BitDepth,
		CodecHeader: codecHeader,
	})
	if err != nil {
		return &sendspinerr.ProtocolError{Reason: err.Error(), Fatal: false}
	}

	c.decoder = dec
	c.descriptor = desc
	return nil
}

// decode converts one inbound media frame to a DecodedFrame, or returns
// StreamFormatMismatch/DecodeError per §7.
func (c *chunkDecoder) decode(frame protocol.MediaFrame) (audio.DecodedFrame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.decoder == nil {
		return audio.DecodedFrame{}, &sendspinerr.ProtocolError{Reason: "media frame arrived before any stream descriptor", Fatal: false}
	}

	activeTag, known := protocol.CodecTagForName(c.descriptor.Codec)
	if !known || frame.CodecTag != activeTag {
		return audio.DecodedFrame{}, &sendspinerr.StreamFormatMismatch{Active: c.descriptor.Codec, Arrived: frame.CodecTag}
	}

	pcm, err := c.decoder.Decode(frame.Payload)
	if err != nil {
		return audio.DecodedFrame{}, &sendspinerr.DecodeError{Codec: c.descriptor.Codec, Err: err}
	}

	return audio.DecodedFrame{
		PresentationTSServerUS: frame.PresentationTSServerUS,
		DurationUS:             durationUS(len(pcm), c.descriptor),
		PCM:                    pcm,
	}, nil
}

// close releases the active decoder, if any.
func (c *chunkDecoder) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decoder != nil {
		_ = c.decoder.Close()
		c.decoder = nil
	}
}

// durationUS derives a frame's playback duration from its interleaved
// sample count and the stream's sample rate/channel count.
func durationUS(sampleCount int, desc audio.StreamDescriptor) int64 {
	if desc.Channels == 0 || desc.SampleRateHz == 0 {
		return 0
	}
	perChannel := sampleCount / desc.Channels
	return int64(perChannel) * 1_000_000 / int64(desc.SampleRateHz)
}
