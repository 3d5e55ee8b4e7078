// ABOUTME: MP3 audio decoder
// ABOUTME: Decodes MP3 audio to int32 samples
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/sendspin-protocol/sendspin-go/pkg/audio"
)

// MP3Decoder streams MP3 bytes through go-mp3's frame reader. Chunk bytes
// are piped in as they arrive so the decoder never needs the whole file
// in memory.
type MP3Decoder struct {
	writer *io.PipeWriter
	pcm    chan []byte
	errs   chan error
	closed bool
}

// NewMP3 creates a new MP3 decoder
func NewMP3(format audio.Format) (Decoder, error) {
	if format.Codec != "mp3" {
		return nil, fmt.Errorf("invalid codec for MP3 decoder: %s", format.Codec)
	}

	reader, writer := io.Pipe()
	d := &MP3Decoder{
		writer: writer,
		pcm:    make(chan []byte, 4),
		errs:   make(chan error, 1),
	}

	go d.run(reader)

	return d, nil
}

func (d *MP3Decoder) run(reader *io.PipeReader) {
	defer reader.Close()

	decoder, err := mp3.NewDecoder(reader)
	if err != nil {
		d.errs <- fmt.Errorf("create mp3 decoder: %w", err)
		return
	}

	buf := make([]byte, 8192)
	for {
		n, err := decoder.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			d.pcm <- chunk
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			d.errs <- fmt.Errorf("mp3 decode: %w", err)
			return
		}
	}
}

// Decode converts MP3 bytes to int32 samples
func (d *MP3Decoder) Decode(data []byte) ([]int32, error) {
	if d.closed {
		return nil, fmt.Errorf("mp3 decoder closed")
	}
	if _, err := d.writer.Write(data); err != nil {
		return nil, fmt.Errorf("write mp3 bytes: %w", err)
	}

	select {
	case raw := <-d.pcm:
		samples := make([]int32, len(raw)/2)
		for i := range samples {
			sample16 := int16(binary.LittleEndian.Uint16(raw[i*2:]))
			samples[i] = audio.SampleFromInt16(sample16)
		}
		return samples, nil
	case err := <-d.errs:
		return nil, err
	}
}

// Close releases decoder resources
func (d *MP3Decoder) Close() error {
	d.closed = true
	return d.writer.Close()
}
