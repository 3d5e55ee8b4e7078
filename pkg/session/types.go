package session

// ConnectionState is F's connection lifecycle state, per §4.6.
type ConnectionState int

// Connection lifecycle states.
const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Errored
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Errored:
		return "error"
	default:
		return "unknown"
	}
}

// ControllerState mirrors §3's ControllerState: group volume/mute and
// the commands the controller role accepts.
type ControllerState struct {
	Volume0To100      int
	Muted             bool
	SupportedCommands []string
}

// PlayerVolumeState mirrors the sink volume last applied from a
// server-pushed player_volume_command, per §4.6: FromServer lets a UI
// tell a server-originated change apart from a local one so it doesn't
// echo it straight back as a local_volume report.
type PlayerVolumeState struct {
	Volume0To100 int
	FromServer   bool
}

// PlayerMuteState mirrors the sink mute state last applied from a
// server-pushed player_mute_command, per §4.6.
type PlayerMuteState struct {
	Muted      bool
	FromServer bool
}

// TrackProgress mirrors §3's TrackProgress.
type TrackProgress struct {
	PositionMS int
	DurationMS int
	SpeedMilli int // 1000 == 1.0x
}

// Metadata mirrors §3's Metadata record. All fields besides
// TimestampServerUS are optional, matching the wire format's `?` fields.
type Metadata struct {
	Title       *string
	Artist      *string
	Album       *string
	AlbumArtist *string
	Year        *int
	TrackNumber *int
	ArtworkURL  *string
	Progress    *TrackProgress
	RepeatMode  *string
	Shuffle     *bool

	// TimestampServerUS is the server-domain time at which Progress was
	// sampled; live positions are extrapolated from it (§4.6).
	TimestampServerUS int64
}

// ExtrapolatedPositionMS implements §4.6's live-position formula:
// position_ms + (server_now_us - timestamp_server_us)/1000 *
// (speed_milli/1000), clamped to [0, duration_ms] once duration_ms > 0.
func (m Metadata) ExtrapolatedPositionMS(serverNowUS int64) int {
	if m.Progress == nil {
		return 0
	}
	p := m.Progress

	elapsedMS := float64(serverNowUS-m.TimestampServerUS) / 1000.0
	pos := float64(p.PositionMS) + elapsedMS*(float64(p.SpeedMilli)/1000.0)

	if p.DurationMS > 0 {
		if pos < 0 {
			pos = 0
		}
		if pos > float64(p.DurationMS) {
			pos = float64(p.DurationMS)
		}
	}
	return int(pos)
}
