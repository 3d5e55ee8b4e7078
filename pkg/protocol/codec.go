package protocol

// Codec tags carried by MediaFrame.CodecTag. §9's open questions note
// that the tag space is not fixed by the spec and should properly be
// enumerated by the server's handshake; this table is our default
// enumeration until a server advertises otherwise, and exists only to
// let F detect a StreamFormatMismatch without string-comparing against
// the wire tag.
const (
	CodecTagPCM  uint8 = 0
	CodecTagOpus uint8 = 1
	CodecTagFLAC uint8 = 2
	CodecTagMP3  uint8 = 3
)

var codecNames = map[uint8]string{
	CodecTagPCM:  "pcm",
	CodecTagOpus: "opus",
	CodecTagFLAC: "flac",
	CodecTagMP3:  "mp3",
}

var codecTags = map[string]uint8{
	"pcm":  CodecTagPCM,
	"opus": CodecTagOpus,
	"flac": CodecTagFLAC,
	"mp3":  CodecTagMP3,
}

// CodecNameForTag returns the codec name for a wire tag, and false if
// the tag is unrecognized.
func CodecNameForTag(tag uint8) (string, bool) {
	name, ok := codecNames[tag]
	return name, ok
}

// CodecTagForName returns the wire tag for a codec name, and false if
// the name is unrecognized.
func CodecTagForName(name string) (uint8, bool) {
	tag, ok := codecTags[name]
	return tag, ok
}
