package protocol

import (
	"encoding/binary"
	"fmt"
)

// MediaFrameHeaderSize is the fixed-width binary header prefixing every
// media frame: presentation_ts_server_us (i64) + codec_tag (u8) +
// payload_len (u32), per spec §6.
const MediaFrameHeaderSize = 8 + 1 + 4

// MediaFrame is a decoded binary media frame: the header fields plus the
// raw codec payload.
type MediaFrame struct {
	PresentationTSServerUS int64
	CodecTag               uint8
	Payload                []byte
}

// EncodeMediaFrame serializes a MediaFrame to its wire representation.
func EncodeMediaFrame(f MediaFrame) []byte {
	buf := make([]byte, MediaFrameHeaderSize+len(f.Payload))
	binary.BigEndian.PutUint64(buf[0:8], uint64(f.PresentationTSServerUS))
	buf[8] = f.CodecTag
	binary.BigEndian.PutUint32(buf[9:13], uint32(len(f.Payload)))
	copy(buf[MediaFrameHeaderSize:], f.Payload)
	return buf
}

// DecodeMediaFrame parses the fixed-width header and payload from a raw
// binary WebSocket message.
func DecodeMediaFrame(data []byte) (MediaFrame, error) {
	if len(data) < MediaFrameHeaderSize {
		return MediaFrame{}, fmt.Errorf("media frame too short: %d bytes", len(data))
	}

	ts := int64(binary.BigEndian.Uint64(data[0:8]))
	tag := data[8]
	payloadLen := binary.BigEndian.Uint32(data[9:13])

	if uint32(len(data)-MediaFrameHeaderSize) < payloadLen {
		return MediaFrame{}, fmt.Errorf("media frame payload truncated: want %d, have %d", payloadLen, len(data)-MediaFrameHeaderSize)
	}

	payload := data[MediaFrameHeaderSize : MediaFrameHeaderSize+int(payloadLen)]
	return MediaFrame{PresentationTSServerUS: ts, CodecTag: tag, Payload: payload}, nil
}
