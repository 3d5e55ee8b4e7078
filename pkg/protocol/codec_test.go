package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodecNameForTagKnown(t *testing.T) {
	name, ok := CodecNameForTag(CodecTagFLAC)
	assert.True(t, ok)
	assert.Equal(t, "flac", name)
}

func TestCodecNameForTagUnknown(t *testing.T) {
	_, ok := CodecNameForTag(200)
	assert.False(t, ok)
}

func TestCodecTagForNameRoundTrips(t *testing.T) {
	for name, tag := range codecTags {
		got, ok := CodecTagForName(name)
		assert.True(t, ok)
		assert.Equal(t, tag, got)
	}
}
