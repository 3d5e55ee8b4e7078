// Package session implements Component F: the connection lifecycle,
// role handshake, inbound frame dispatch, and outbound command flow
// described in §4.6. Grounded on the teacher repository's
// internal/client/websocket.go (connect/handshake/read-loop shape),
// generalized from the Resonate JSON envelope to the Sendspin one and
// from the teacher's single-attempt Connect to the spec's
// backoff-driven reconnection supervisor.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sendspin-protocol/sendspin-go/internal/sendspinerr"
	"github.com/sendspin-protocol/sendspin-go/pkg/audio"
	"github.com/sendspin-protocol/sendspin-go/pkg/audio/sink"
	"github.com/sendspin-protocol/sendspin-go/pkg/clock"
	"github.com/sendspin-protocol/sendspin-go/pkg/jitter"
	"github.com/sendspin-protocol/sendspin-go/pkg/probe"
	"github.com/sendspin-protocol/sendspin-go/pkg/protocol"
)

// DialTimeout is the channel-open timeout from §5.
const DialTimeout = 10 * time.Second

// localVolumeEchoSuppressWindow implements the §9 design note: a
// local_volume outbound is suppressed if it matches an inbound
// player_volume received within this window, so server-originated
// volume pushes don't bounce back to the server.
const localVolumeEchoSuppressWindow = 500 * time.Millisecond

// Config configures a Session at construction.
type Config struct {
	ClientID   string
	ClientName string
	Roles      []string
}

// Option configures a Session at construction.
type Option func(*Session)

// WithLogger injects a structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithDialer overrides the channel dialer, for tests.
func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

// WithSink attaches the audio sink server-pushed volume/mute commands
// are applied to.
func WithSink(snk sink.Sink) Option {
	return func(s *Session) { s.sink = snk }
}

// WithJitterBuffer overrides the default jitter buffer, letting callers
// share one across session reconnects or tune its options.
func WithJitterBuffer(b *jitter.Buffer) Option {
	return func(s *Session) { s.buffer = b }
}

// WithClockFilter overrides the default clock filter.
func WithClockFilter(f *clock.Filter) Option {
	return func(s *Session) { s.filter = f }
}

// Session is Component F.
type Session struct {
	logger  *zap.Logger
	dialer  Dialer
	config  Config
	sink    sink.Sink

	filter *clock.Filter
	buffer *jitter.Buffer
	decode *chunkDecoder
	store  *Store

	mu                sync.Mutex
	conn              Conn
	probeDrv          *probe.Driver
	runCancel         context.CancelFunc
	userDisconnect    bool
	lastInboundVolume volumeEcho

	// writeMu serializes every WriteJSON onto conn: gorilla/websocket
	// requires a single writer per connection, but the probe driver
	// (pkg/probe.Driver.fire, driven from its own goroutine) and the
	// public command API (Play/Pause/SetGroupVolume/...) both write
	// concurrently. Every outbound write goes through writeJSON.
	writeMu sync.Mutex
}

type volumeEcho struct {
	has   bool
	value int
	at    time.Time
}

// New constructs a Session. The clock filter and jitter buffer are
// created fresh unless overridden with WithClockFilter/WithJitterBuffer.
func New(cfg Config, opts ...Option) *Session {
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "Sendspin Player"
	}
	if len(cfg.Roles) == 0 {
		cfg.Roles = []string{"player"}
	}

	s := &Session{
		logger: zap.NewNop(),
		dialer: DialWebsocket,
		config: cfg,
		filter: clock.New(),
		buffer: jitter.New(),
		store:  NewStore(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.decode = newChunkDecoder(s.logger)
	return s
}

// Filter returns Component A, shared with the playout scheduler.
func (s *Session) Filter() *clock.Filter { return s.filter }

// Buffer returns Component D, shared with the playout scheduler.
func (s *Session) Buffer() *jitter.Buffer { return s.buffer }

// Store returns Component I.
func (s *Session) Store() *Store { return s.store }

// Connect drives DISCONNECTED -> CONNECTING per §4.6, then supervises
// the connection for its lifetime: passive transport errors trigger
// reconnection to the same url with exponential backoff (1, 2, 4, 8,
// 16, 30s cap) until Disconnect is called. It returns once the
// supervisor has been started; connection progress is observed via
// Store().Connection.
func (s *Session) Connect(ctx context.Context, url string) error {
	s.mu.Lock()
	if s.runCancel != nil {
		s.mu.Unlock()
		return fmt.Errorf("session already connecting or connected")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	s.userDisconnect = false
	s.mu.Unlock()

	go s.supervise(runCtx, url)
	return nil
}

// Disconnect implements §4.6's disconnect() from any state: cancels the
// inbound reader and reconnection timer, closes the channel, resets all
// observable state, and sets DISCONNECTED.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.userDisconnect = true
	cancel := s.runCancel
	s.runCancel = nil
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}

	s.decode.close()
	s.store.reset()
}

func (s *Session) supervise(ctx context.Context, url string) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.Multiplier = 2
	bo.MaxInterval = 30 * time.Second
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.store.Connection.Set(Connecting)
		conn, err := s.attemptConnect(ctx, url)
		if err != nil {
			s.logger.Warn("connect attempt failed", zap.Error(err))
			s.store.Connection.Set(Errored)
			s.store.Connection.Set(Disconnected)

			if isFatalProtocolError(err) {
				return
			}

			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		bo.Reset()
		s.store.Connection.Set(Connected)
		exitErr := s.runConnected(ctx, conn)

		s.mu.Lock()
		userInitiated := s.userDisconnect
		s.mu.Unlock()
		if userInitiated {
			return
		}

		s.logger.Warn("connection lost, will reconnect", zap.Error(exitErr))
		s.store.Connection.Set(Errored)
		s.store.Connection.Set(Disconnected)

		select {
		case <-ctx.Done():
			return
		case <-time.After(bo.NextBackOff()):
		}
	}
}

func isFatalProtocolError(err error) bool {
	var perr *sendspinerr.ProtocolError
	return asProtocolError(err, &perr) && perr.Fatal
}

func asProtocolError(err error, target **sendspinerr.ProtocolError) bool {
	if perr, ok := err.(*sendspinerr.ProtocolError); ok {
		*target = perr
		return true
	}
	return false
}

// attemptConnect dials the channel and performs the hello/hello_ack
// handshake, bounded by DialTimeout.
func (s *Session) attemptConnect(ctx context.Context, url string) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()

	conn, err := s.dialer(dialCtx, url)
	if err != nil {
		return nil, &sendspinerr.TransportError{Op: "dial", Err: err}
	}

	if err := s.handshake(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (s *Session) handshake(conn Conn) error {
	hello := protocol.Hello{
		ClientID:   s.config.ClientID,
		ClientName: s.config.ClientName,
		Roles:      s.config.Roles,
	}
	if err := s.writeJSON(conn, protocol.Envelope{Type: protocol.TypeHello, Payload: hello}); err != nil {
		return &sendspinerr.TransportError{Op: "send hello", Err: err}
	}

	_ = conn.SetReadDeadline(time.Now().Add(DialTimeout))
	defer conn.SetReadDeadline(time.Time{})

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return &sendspinerr.TransportError{Op: "read hello_ack", Err: err}
	}
	if msgType != websocket.TextMessage {
		return &sendspinerr.ProtocolError{Reason: "expected text hello_ack, got binary frame", Fatal: true}
	}

	var env rawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return &sendspinerr.ProtocolError{Reason: fmt.Sprintf("malformed hello_ack: %v", err), Fatal: true}
	}
	if env.Type != protocol.TypeHelloAck {
		return &sendspinerr.ProtocolError{Reason: fmt.Sprintf("expected hello_ack, got %q", env.Type), Fatal: true}
	}

	var ack protocol.HelloAck
	if err := json.Unmarshal(env.Payload, &ack); err != nil {
		return &sendspinerr.ProtocolError{Reason: fmt.Sprintf("malformed hello_ack payload: %v", err), Fatal: true}
	}

	s.store.Controller.Set(ControllerState{SupportedCommands: ack.SupportedCommands})
	if ack.Stream != nil {
		s.applyStreamFrame(*ack.Stream)
	}
	return nil
}

// runConnected owns the conn for the duration of one connected session:
// it starts the probe driver, reads inbound frames until the connection
// fails or Disconnect is called, and tears everything down on exit.
func (s *Session) runConnected(ctx context.Context, conn Conn) error {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	drv := probe.New(s.filter, func(t0 int64) error {
		return s.send(protocol.TypeTimeProbe, protocol.TimeProbe{T0US: t0})
	}, probe.WithLogger(s.logger))
	s.mu.Lock()
	s.probeDrv = drv
	s.mu.Unlock()

	go drv.Run(connCtx)

	err := s.readLoop(connCtx, conn)

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.probeDrv = nil
	s.mu.Unlock()

	return err
}

func (s *Session) readLoop(ctx context.Context, conn Conn) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return &sendspinerr.TransportError{Op: "read", Err: err}
		}

		switch msgType {
		case websocket.BinaryMessage:
			s.handleMediaFrame(data)
		case websocket.TextMessage:
			s.handleControlFrame(data)
		}
	}
}

type rawEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Session) handleMediaFrame(data []byte) {
	frame, err := protocol.DecodeMediaFrame(data)
	if err != nil {
		s.logger.Warn("malformed media frame", zap.Error(err))
		return
	}

	decoded, err := s.decode.decode(frame)
	if err != nil {
		s.logger.Debug("dropping media frame", zap.Error(err))
		return
	}

	serverNow := s.filter.ClientToServer(nowLocalUS())
	s.buffer.Insert(decoded, serverNow)
	s.store.Buffer.Set(s.buffer.Stats(serverNow))
}

func (s *Session) handleControlFrame(data []byte) {
	var env rawEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn("malformed control frame", zap.Error(err))
		return
	}

	switch env.Type {
	case protocol.TypeTimeProbeResponse:
		var resp protocol.TimeProbeResponse
		if s.unmarshalInto(env.Payload, &resp) {
			s.mu.Lock()
			drv := s.probeDrv
			s.mu.Unlock()
			if drv != nil {
				drv.HandleResponse(resp.T0US, resp.S1US, resp.S2US)
			}
		}

	case protocol.TypeStream:
		var stream protocol.StreamFrame
		if s.unmarshalInto(env.Payload, &stream) {
			s.applyStreamFrame(stream)
		}

	case protocol.TypeMetadata:
		var meta protocol.MetadataFrame
		if s.unmarshalInto(env.Payload, &meta) {
			s.store.Metadata.Set(toSessionMetadata(meta))
		}

	case protocol.TypeController:
		var ctrl protocol.ControllerFrame
		if s.unmarshalInto(env.Payload, &ctrl) {
			s.store.Controller.Set(ControllerState{
				Volume0To100:      ctrl.Volume,
				Muted:             ctrl.Muted,
				SupportedCommands: ctrl.SupportedCommands,
			})
		}

	case protocol.TypePlayerVolume:
		var pv protocol.PlayerVolume
		if s.unmarshalInto(env.Payload, &pv) {
			s.applyServerVolume(pv.Volume0To100)
		}

	case protocol.TypePlayerMute:
		var pm protocol.PlayerMute
		if s.unmarshalInto(env.Payload, &pm) {
			s.applyServerMute(pm.Muted)
		}

	default:
		s.logger.Debug("unhandled control frame type", zap.String("type", env.Type))
	}
}

func (s *Session) unmarshalInto(raw json.RawMessage, v interface{}) bool {
	if err := json.Unmarshal(raw, v); err != nil {
		s.logger.Warn("malformed frame payload", zap.String("into", fmt.Sprintf("%T", v)), zap.Error(err))
		return false
	}
	return true
}

func (s *Session) applyStreamFrame(stream protocol.StreamFrame) {
	desc := audio.StreamDescriptor{
		Codec:         stream.Codec,
		SampleRateHz:  stream.SampleRateHz,
		Channels:      stream.Channels,
		BitDepth:      stream.BitDepth,
		PlaybackState: stream.PlaybackState,
		GroupName:     stream.GroupName,
	}
	if err := s.decode.setStream(desc, stream.CodecHeader); err != nil {
		s.logger.Warn("failed to install decoder for stream descriptor", zap.Error(err))
	}
	if s.sink != nil {
		if err := s.sink.Open(desc.SampleRateHz, desc.Channels, desc.BitDepth); err != nil {
			s.logger.Warn("failed to open sink for stream descriptor", zap.Error(err))
		}
	}
	s.store.Stream.Set(desc)
}

// applyServerVolume applies a server-pushed player_volume_command to
// the sink and publishes it through Component I with FromServer set, so
// a UI observer can react without bouncing it back as a local echo
// (§4.6).
func (s *Session) applyServerVolume(volume int) {
	if s.sink != nil {
		s.sink.VolumeSet(volume)
	}
	s.mu.Lock()
	s.lastInboundVolume = volumeEcho{has: true, value: volume, at: time.Now()}
	s.mu.Unlock()
	s.store.PlayerVolume.Set(PlayerVolumeState{Volume0To100: volume, FromServer: true})
}

// applyServerMute applies a server-pushed player_mute_command to the
// sink and publishes it through Component I with FromServer set, per
// §4.6.
func (s *Session) applyServerMute(muted bool) {
	if s.sink != nil {
		s.sink.MuteSet(muted)
	}
	s.store.PlayerMute.Set(PlayerMuteState{Muted: muted, FromServer: true})
}

func toSessionMetadata(m protocol.MetadataFrame) Metadata {
	out := Metadata{
		Title:       m.Title,
		Artist:      m.Artist,
		Album:       m.Album,
		AlbumArtist: m.AlbumArtist,
		Year:        m.Year,
		TrackNumber: m.TrackNumber,
		ArtworkURL:  m.ArtworkURL,
		RepeatMode:  m.RepeatMode,
		Shuffle:     m.Shuffle,
		TimestampServerUS: m.ServerTSUS,
	}
	if m.Progress != nil {
		out.Progress = &TrackProgress{
			PositionMS: m.Progress.PositionMS,
			DurationMS: m.Progress.DurationMS,
			SpeedMilli: m.Progress.SpeedMilli,
		}
	}
	return out
}

// send transmits a JSON control frame, surfacing a TransportError if
// the channel is not currently connected.
func (s *Session) send(msgType string, payload interface{}) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return &sendspinerr.TransportError{Op: "send " + msgType, Err: fmt.Errorf("not connected")}
	}
	if err := s.writeJSON(conn, protocol.Envelope{Type: msgType, Payload: payload}); err != nil {
		return &sendspinerr.TransportError{Op: "send " + msgType, Err: err}
	}
	return nil
}

// writeJSON is the single chokepoint every outbound write passes
// through, so probe.Driver's own goroutine and the command API above
// never call conn.WriteJSON concurrently (§5: "single writer per
// channel").
func (s *Session) writeJSON(conn Conn, v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(v)
}

// Outbound one-shot commands, per §4.6. Each is fire-and-forget;
// failure is only observable via loss of CONNECTED.

func (s *Session) Play() error     { return s.cmd(protocol.ActionPlay) }
func (s *Session) Pause() error    { return s.cmd(protocol.ActionPause) }
func (s *Session) Stop() error     { return s.cmd(protocol.ActionStop) }
func (s *Session) Next() error     { return s.cmd(protocol.ActionNext) }
func (s *Session) Previous() error { return s.cmd(protocol.ActionPrevious) }

func (s *Session) cmd(action string) error {
	return s.send(protocol.TypeCmd, protocol.Cmd{Action: action})
}

// SetGroupVolume requests a controller-scope volume change.
func (s *Session) SetGroupVolume(volume0To100 int) error {
	return s.send(protocol.TypeGroupVolume, protocol.GroupVolume{Volume0To100: volume0To100})
}

// SetGroupMute requests a controller-scope mute change.
func (s *Session) SetGroupMute(muted bool) error {
	return s.send(protocol.TypeGroupMute, protocol.GroupMute{Muted: muted})
}

// SetLocalVolume reports this client's local volume to the server. Per
// §9, it is suppressed when it merely echoes a player_volume pushed by
// the server within the last 500ms, to avoid a feedback loop.
func (s *Session) SetLocalVolume(volume0To100 int) error {
	s.mu.Lock()
	echo := s.lastInboundVolume
	s.mu.Unlock()

	if echo.has && echo.value == volume0To100 && time.Since(echo.at) < localVolumeEchoSuppressWindow {
		return nil
	}
	return s.send(protocol.TypeLocalVolume, protocol.LocalVolume{Volume0To100: volume0To100})
}

// SetLocalMute reports this client's local mute state to the server.
func (s *Session) SetLocalMute(muted bool) error {
	return s.send(protocol.TypeLocalMute, protocol.LocalMute{Muted: muted})
}

var nowLocalUS = func() int64 {
	return time.Now().UnixMicro()
}
