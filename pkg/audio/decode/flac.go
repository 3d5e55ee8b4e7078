// ABOUTME: FLAC audio decoder
// ABOUTME: Decodes FLAC audio to int32 samples
package decode

import (
	"fmt"
	"io"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"

	"github.com/sendspin-protocol/sendspin-go/pkg/audio"
)

// FLACDecoder streams FLAC frames through mewkiz/flac's frame parser. The
// codec header (fLaC magic, STREAMINFO and any other metadata blocks)
// arrives once with the stream format and is fed into the parser before
// any frame bytes; every later chunk is expected to hold exactly one
// decodable FLAC frame.
type FLACDecoder struct {
	writer *io.PipeWriter
	frames chan []int32
	errs   chan error
	closed bool
}

// NewFLAC creates a new FLAC decoder
func NewFLAC(format audio.Format) (Decoder, error) {
	if format.Codec != "flac" {
		return nil, fmt.Errorf("invalid codec for FLAC decoder: %s", format.Codec)
	}
	if len(format.CodecHeader) == 0 {
		return nil, fmt.Errorf("flac decoder requires a codec header")
	}

	reader, writer := io.Pipe()
	d := &FLACDecoder{
		writer: writer,
		frames: make(chan []int32, 4),
		errs:   make(chan error, 1),
	}

	go d.run(reader)

	if _, err := writer.Write(format.CodecHeader); err != nil {
		return nil, fmt.Errorf("write flac header: %w", err)
	}

	return d, nil
}

func (d *FLACDecoder) run(reader *io.PipeReader) {
	defer reader.Close()

	stream, err := flac.New(reader)
	if err != nil {
		d.errs <- fmt.Errorf("parse flac stream header: %w", err)
		return
	}

	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			return
		}
		if err != nil {
			d.errs <- fmt.Errorf("parse flac frame: %w", err)
			return
		}
		d.frames <- interleaveFLAC(f)
	}
}

// interleaveFLAC converts a decoded FLAC frame's per-channel subframes into
// interleaved int32 samples, left-justified to the 24-bit range used
// throughout the package.
func interleaveFLAC(f *frame.Frame) []int32 {
	channels := len(f.Subframes)
	if channels == 0 {
		return nil
	}
	shift := 24 - int(f.BitsPerSample)
	numSamples := len(f.Subframes[0].Samples)

	out := make([]int32, 0, numSamples*channels)
	for i := 0; i < numSamples; i++ {
		for ch := 0; ch < channels; ch++ {
			sample := f.Subframes[ch].Samples[i]
			if shift > 0 {
				sample <<= uint(shift)
			} else if shift < 0 {
				sample >>= uint(-shift)
			}
			out = append(out, sample)
		}
	}
	return out
}

// Decode converts FLAC bytes to int32 samples
func (d *FLACDecoder) Decode(data []byte) ([]int32, error) {
	if d.closed {
		return nil, fmt.Errorf("flac decoder closed")
	}
	if _, err := d.writer.Write(data); err != nil {
		return nil, fmt.Errorf("write flac frame bytes: %w", err)
	}

	select {
	case samples := <-d.frames:
		return samples, nil
	case err := <-d.errs:
		return nil, err
	}
}

// Close releases decoder resources
func (d *FLACDecoder) Close() error {
	d.closed = true
	return d.writer.Close()
}
