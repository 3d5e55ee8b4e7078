// ABOUTME: Tests for MP3 decoder
// ABOUTME: Tests MP3 decoder creation and codec validation
package decode

import (
	"testing"

	"github.com/sendspin-protocol/sendspin-go/pkg/audio"
)

func TestNewMP3(t *testing.T) {
	format := audio.Format{
		Codec:      "mp3",
		SampleRate: 44100,
		Channels:   2,
		BitDepth:   16,
	}

	decoder, err := NewMP3(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}
	if decoder == nil {
		t.Fatal("expected decoder to be created")
	}
	decoder.Close()
}

func TestNewMP3InvalidCodec(t *testing.T) {
	format := audio.Format{
		Codec:      "opus",
		SampleRate: 44100,
		Channels:   2,
		BitDepth:   16,
	}

	decoder, err := NewMP3(format)
	if err == nil {
		t.Fatal("expected error for invalid codec, got nil")
	}
	if decoder != nil {
		t.Fatal("expected decoder to be nil for invalid codec")
	}

	expectedError := "invalid codec for MP3 decoder: opus"
	if err.Error() != expectedError {
		t.Errorf("expected error %q, got %q", expectedError, err.Error())
	}
}

func TestMP3DecodeSurfacesParseErrorOnGarbageData(t *testing.T) {
	format := audio.Format{Codec: "mp3", SampleRate: 44100, Channels: 2, BitDepth: 16}
	decoder, err := NewMP3(format)
	if err != nil {
		t.Fatalf("failed to create decoder: %v", err)
	}
	defer decoder.Close()

	_, err = decoder.Decode([]byte{0x00, 0x01, 0x02, 0x03})
	if err == nil {
		t.Fatal("expected decode error for non-MP3 data, got nil")
	}
}
