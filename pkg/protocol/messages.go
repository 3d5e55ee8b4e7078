// Package protocol defines the Sendspin wire message types: JSON control
// frames and the binary media frame header, per spec §6.
package protocol

// Envelope is the top-level wrapper for every JSON control frame.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Frame type discriminators, per spec §6.
const (
	TypeHello             = "hello"
	TypeHelloAck          = "hello_ack"
	TypeTimeProbe         = "time_probe"
	TypeTimeProbeResponse = "time_probe_response"
	TypeStream            = "stream"
	TypeMetadata          = "metadata"
	TypeController        = "controller"
	TypePlayerVolume      = "player_volume"
	TypePlayerMute        = "player_mute"
	TypeCmd               = "cmd"
	TypeGroupVolume       = "group_volume"
	TypeGroupMute         = "group_mute"
	TypeLocalVolume       = "local_volume"
	TypeLocalMute         = "local_mute"
)

// Hello is sent client->server to initiate the session handshake.
type Hello struct {
	ClientID   string   `json:"client_id"`
	ClientName string   `json:"client_name"`
	Roles      []string `json:"roles"`
}

// HelloAck is the server's response, establishing group membership and
// the commands the controller role supports.
type HelloAck struct {
	GroupName         string       `json:"group_name"`
	SupportedCommands []string     `json:"supported_commands"`
	Stream            *StreamFrame `json:"stream,omitempty"`
}

// TimeProbe is sent client->server carrying the client-transmit timestamp.
type TimeProbe struct {
	T0US int64 `json:"t0_us"`
}

// TimeProbeResponse is the server's reply, carrying the paired server
// receive/transmit timestamps alongside the echoed t0.
type TimeProbeResponse struct {
	T0US int64 `json:"t0_us"`
	S1US int64 `json:"s1_us"`
	S2US int64 `json:"s2_us"`
}

// StreamFrame describes the active stream's audio format and playback
// state. CodecHeader carries any out-of-band bytes a streaming decoder
// needs before its first frame (FLAC's "fLaC" magic plus metadata
// blocks, Opus's OpusHead); it is absent for self-describing codecs
// like PCM.
type StreamFrame struct {
	Codec         string `json:"codec"`
	SampleRateHz  int    `json:"sample_rate"`
	Channels      int    `json:"channels"`
	BitDepth      int    `json:"bit_depth"`
	PlaybackState string `json:"playback_state"`
	GroupName     string `json:"group_name"`
	CodecHeader   []byte `json:"codec_header,omitempty"`
}

// MetadataFrame carries track metadata and, optionally, playback progress.
type MetadataFrame struct {
	Title       *string   `json:"title,omitempty"`
	Artist      *string   `json:"artist,omitempty"`
	Album       *string   `json:"album,omitempty"`
	AlbumArtist *string   `json:"album_artist,omitempty"`
	Year        *int      `json:"year,omitempty"`
	TrackNumber *int      `json:"track_number,omitempty"`
	ArtworkURL  *string   `json:"artwork_url,omitempty"`
	Progress    *Progress `json:"progress,omitempty"`
	RepeatMode  *string   `json:"repeat_mode,omitempty"`
	Shuffle     *bool     `json:"shuffle,omitempty"`
	ServerTSUS  int64     `json:"server_ts_us"`
}

// Progress is the nested track-progress object of MetadataFrame.
type Progress struct {
	PositionMS int `json:"position_ms"`
	DurationMS int `json:"duration_ms"`
	SpeedMilli int `json:"speed_milli"`
}

// ControllerFrame reports group volume/mute and the commands it accepts.
type ControllerFrame struct {
	Volume            int      `json:"volume"`
	Muted             bool     `json:"muted"`
	SupportedCommands []string `json:"supported_commands"`
}

// PlayerVolume is a server->client push of the platform volume level.
type PlayerVolume struct {
	Volume0To100 int `json:"volume_0_100"`
}

// PlayerMute is a server->client push of the platform mute state.
type PlayerMute struct {
	Muted bool `json:"muted"`
}

// Cmd is a one-shot transport control sent client->server.
type Cmd struct {
	Action string `json:"action"` // play, pause, stop, next, previous
}

// GroupVolume requests a group (controller-scope) volume change.
type GroupVolume struct {
	Volume0To100 int `json:"volume_0_100"`
}

// GroupMute requests a group (controller-scope) mute change.
type GroupMute struct {
	Muted bool `json:"muted"`
}

// LocalVolume reports this client's local volume back to the server.
type LocalVolume struct {
	Volume0To100 int `json:"volume_0_100"`
}

// LocalMute reports this client's local mute state back to the server.
// The wire table in §6 fixes local_volume explicitly; local_mute is the
// analogous counterpart §4.6's outbound command list names
// (set_local_mute(b)) but leaves unenumerated.
type LocalMute struct {
	Muted bool `json:"muted"`
}

// Command action names accepted by Cmd.Action.
const (
	ActionPlay     = "play"
	ActionPause    = "pause"
	ActionStop     = "stop"
	ActionNext     = "next"
	ActionPrevious = "previous"
)

// Playback states carried by StreamFrame.PlaybackState.
const (
	PlaybackIdle    = "idle"
	PlaybackPlaying = "playing"
	PlaybackPaused  = "paused"
	PlaybackStopped = "stopped"
)
