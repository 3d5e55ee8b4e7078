package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMediaFrameEncodeDecodeRoundTrip(t *testing.T) {
	original := MediaFrame{
		PresentationTSServerUS: 1_234_567_890,
		CodecTag:               2,
		Payload:                []byte{0x01, 0x02, 0x03, 0x04},
	}

	decoded, err := DecodeMediaFrame(EncodeMediaFrame(original))
	require.NoError(t, err)
	require.Equal(t, original, decoded)
}

func TestDecodeMediaFrameRejectsShortHeader(t *testing.T) {
	_, err := DecodeMediaFrame([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestDecodeMediaFrameRejectsTruncatedPayload(t *testing.T) {
	buf := EncodeMediaFrame(MediaFrame{PresentationTSServerUS: 1, CodecTag: 0, Payload: []byte{1, 2, 3, 4}})
	_, err := DecodeMediaFrame(buf[:len(buf)-2])
	require.Error(t, err)
}
