package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendspin-protocol/sendspin-go/internal/sendspinerr"
	"github.com/sendspin-protocol/sendspin-go/pkg/protocol"
)

// fakeConn is an in-process Conn backed by channels, so the session's
// handshake/read-loop/send paths can be exercised without a real socket.
type fakeConn struct {
	inbound chan wireMsg
	sent    chan wireMsg
	closed  chan struct{}
}

type wireMsg struct {
	msgType int
	data    []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan wireMsg, 16),
		sent:    make(chan wireMsg, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case f.sent <- wireMsg{msgType: websocket.TextMessage, data: data}:
	case <-f.closed:
	}
	return nil
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case f.sent <- wireMsg{msgType: messageType, data: data}:
	case <-f.closed:
	}
	return nil
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case m := <-f.inbound:
		return m.msgType, m.data, nil
	case <-f.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

func (f *fakeConn) pushText(t *testing.T, envelopeType string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	env := struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}{Type: envelopeType, Payload: raw}
	data, err := json.Marshal(env)
	require.NoError(t, err)
	f.inbound <- wireMsg{msgType: websocket.TextMessage, data: data}
}

func (f *fakeConn) nextSent(t *testing.T, timeout time.Duration) wireMsg {
	t.Helper()
	select {
	case m := <-f.sent:
		return m
	case <-time.After(timeout):
		t.Fatal("timed out waiting for outbound message")
		return wireMsg{}
	}
}

func dialerFor(conn *fakeConn) Dialer {
	return func(ctx context.Context, url string) (Conn, error) {
		return conn, nil
	}
}

func waitForConnected(t *testing.T, s *Session) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if s.Store().Connection.Get() == Connected {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("session never reached Connected, last state %v", s.Store().Connection.Get())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestConnectPerformsHandshakeAndReachesConnected(t *testing.T) {
	conn := newFakeConn()
	s := New(Config{}, WithDialer(dialerFor(conn)))

	require.NoError(t, s.Connect(context.Background(), "ws://test/sendspin"))

	helloSent := conn.nextSent(t, time.Second)
	assert.Equal(t, websocket.TextMessage, helloSent.msgType)
	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(helloSent.data, &env))
	assert.Equal(t, protocol.TypeHello, env.Type)

	conn.pushText(t, protocol.TypeHelloAck, protocol.HelloAck{SupportedCommands: []string{"play"}})

	waitForConnected(t, s)
	assert.Equal(t, []string{"play"}, s.Store().Controller.Get().SupportedCommands)

	s.Disconnect()
}

func TestHandshakeRejectsNonHelloAckFirstMessage(t *testing.T) {
	conn := newFakeConn()
	s := New(Config{}, WithDialer(dialerFor(conn)))

	require.NoError(t, s.Connect(context.Background(), "ws://test/sendspin"))
	conn.nextSent(t, time.Second)

	conn.pushText(t, protocol.TypeMetadata, protocol.MetadataFrame{})

	deadline := time.After(2 * time.Second)
	for {
		state := s.Store().Connection.Get()
		if state == Errored || state == Disconnected {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("session never reported handshake failure, last state %v", state)
		case <-time.After(5 * time.Millisecond):
		}
	}

	s.Disconnect()
}

func TestStreamFrameUpdatesStoreAndCommandsRequireConnection(t *testing.T) {
	s := New(Config{})

	err := s.Play()
	require.Error(t, err)

	s.applyStreamFrame(protocol.StreamFrame{
		Codec:        "pcm",
		SampleRateHz: 44100,
		Channels:     2,
		BitDepth:     16,
	})

	desc := s.Store().Stream.Get()
	assert.Equal(t, "pcm", desc.Codec)
	assert.Equal(t, 44100, desc.SampleRateHz)
}

func TestMetadataExtrapolatesLivePosition(t *testing.T) {
	conn := newFakeConn()
	s := New(Config{}, WithDialer(dialerFor(conn)))
	require.NoError(t, s.Connect(context.Background(), "ws://test/sendspin"))
	conn.nextSent(t, time.Second)
	conn.pushText(t, protocol.TypeHelloAck, protocol.HelloAck{})
	waitForConnected(t, s)

	conn.pushText(t, protocol.TypeMetadata, protocol.MetadataFrame{
		Progress: &protocol.Progress{
			PositionMS: 1000,
			DurationMS: 60000,
			SpeedMilli: 1000,
		},
		ServerTSUS: 0,
	})

	deadline := time.After(time.Second)
	for s.Store().Metadata.Get().Progress == nil {
		select {
		case <-deadline:
			t.Fatal("metadata never arrived")
		case <-time.After(5 * time.Millisecond):
		}
	}

	meta := s.Store().Metadata.Get()
	pos := meta.ExtrapolatedPositionMS(2_000_000) // 2s later, server-domain micros
	assert.Equal(t, 3000, pos)

	s.Disconnect()
}

func TestSetLocalVolumeSuppressesEchoOfRecentServerVolume(t *testing.T) {
	conn := newFakeConn()
	s := New(Config{}, WithDialer(dialerFor(conn)))
	require.NoError(t, s.Connect(context.Background(), "ws://test/sendspin"))
	conn.nextSent(t, time.Second)
	conn.pushText(t, protocol.TypeHelloAck, protocol.HelloAck{})
	waitForConnected(t, s)

	conn.pushText(t, protocol.TypePlayerVolume, protocol.PlayerVolume{Volume0To100: 42})

	deadline := time.After(time.Second)
	for {
		s.mu.Lock()
		has := s.lastInboundVolume.has
		s.mu.Unlock()
		if has {
			break
		}
		select {
		case <-deadline:
			t.Fatal("inbound volume never applied")
		case <-time.After(5 * time.Millisecond):
		}
	}

	require.NoError(t, s.SetLocalVolume(42))

	select {
	case m := <-conn.sent:
		t.Fatalf("expected echo suppression, got outbound message: %s", string(m.data))
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, s.SetLocalVolume(7))
	sent := conn.nextSent(t, time.Second)
	assert.Equal(t, websocket.TextMessage, sent.msgType)

	s.Disconnect()
}

func TestDisconnectResetsObservableState(t *testing.T) {
	conn := newFakeConn()
	s := New(Config{}, WithDialer(dialerFor(conn)))
	require.NoError(t, s.Connect(context.Background(), "ws://test/sendspin"))
	conn.nextSent(t, time.Second)
	conn.pushText(t, protocol.TypeHelloAck, protocol.HelloAck{})
	waitForConnected(t, s)

	s.Disconnect()

	assert.Equal(t, Disconnected, s.Store().Connection.Get())
}

func TestServerPlayerVolumeSetsFromServerFlagInStore(t *testing.T) {
	conn := newFakeConn()
	s := New(Config{}, WithDialer(dialerFor(conn)))
	require.NoError(t, s.Connect(context.Background(), "ws://test/sendspin"))
	conn.nextSent(t, time.Second)
	conn.pushText(t, protocol.TypeHelloAck, protocol.HelloAck{})
	waitForConnected(t, s)

	assert.False(t, s.Store().PlayerVolume.Get().FromServer)

	conn.pushText(t, protocol.TypePlayerVolume, protocol.PlayerVolume{Volume0To100: 55})

	deadline := time.After(time.Second)
	for !s.Store().PlayerVolume.Get().FromServer {
		select {
		case <-deadline:
			t.Fatal("player_volume never published to the store")
		case <-time.After(5 * time.Millisecond):
		}
	}
	assert.Equal(t, 55, s.Store().PlayerVolume.Get().Volume0To100)

	s.Disconnect()
}

func TestServerPlayerMuteSetsFromServerFlagInStore(t *testing.T) {
	conn := newFakeConn()
	s := New(Config{}, WithDialer(dialerFor(conn)))
	require.NoError(t, s.Connect(context.Background(), "ws://test/sendspin"))
	conn.nextSent(t, time.Second)
	conn.pushText(t, protocol.TypeHelloAck, protocol.HelloAck{})
	waitForConnected(t, s)

	conn.pushText(t, protocol.TypePlayerMute, protocol.PlayerMute{Muted: true})

	deadline := time.After(time.Second)
	for !s.Store().PlayerMute.Get().FromServer {
		select {
		case <-deadline:
			t.Fatal("player_mute never published to the store")
		case <-time.After(5 * time.Millisecond):
		}
	}
	assert.True(t, s.Store().PlayerMute.Get().Muted)

	s.Disconnect()
}

func TestDisconnectResetsPlayerVolumeAndMuteFlags(t *testing.T) {
	conn := newFakeConn()
	s := New(Config{}, WithDialer(dialerFor(conn)))
	require.NoError(t, s.Connect(context.Background(), "ws://test/sendspin"))
	conn.nextSent(t, time.Second)
	conn.pushText(t, protocol.TypeHelloAck, protocol.HelloAck{})
	waitForConnected(t, s)

	conn.pushText(t, protocol.TypePlayerVolume, protocol.PlayerVolume{Volume0To100: 30})
	deadline := time.After(time.Second)
	for !s.Store().PlayerVolume.Get().FromServer {
		select {
		case <-deadline:
			t.Fatal("player_volume never published to the store")
		case <-time.After(5 * time.Millisecond):
		}
	}

	s.Disconnect()

	assert.False(t, s.Store().PlayerVolume.Get().FromServer)
	assert.False(t, s.Store().PlayerMute.Get().FromServer)
}

// TestConcurrentWritesDoNotRace sends 20 SetGroupVolume commands from
// concurrent goroutines through writeJSON and waits for all of them to
// return. fakeConn's channel is itself safe for concurrent use, and the
// probe driver's first probe is not due within the test's lifetime.
func TestConcurrentWritesDoNotRace(t *testing.T) {
	conn := newFakeConn()
	s := New(Config{}, WithDialer(dialerFor(conn)))
	require.NoError(t, s.Connect(context.Background(), "ws://test/sendspin"))
	conn.nextSent(t, time.Second)
	conn.pushText(t, protocol.TypeHelloAck, protocol.HelloAck{})
	waitForConnected(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(vol int) {
			defer wg.Done()
			_ = s.SetGroupVolume(vol % 100)
		}(i)
	}

	drain := make(chan struct{})
	go func() {
		defer close(drain)
		for {
			select {
			case <-conn.sent:
			case <-time.After(200 * time.Millisecond):
				return
			}
		}
	}()

	wg.Wait()
	<-drain

	s.Disconnect()
}

func TestIsFatalProtocolErrorDistinguishesFatalFromRetryable(t *testing.T) {
	assert.True(t, isFatalProtocolError(&sendspinerr.ProtocolError{Reason: "bad", Fatal: true}))
	assert.False(t, isFatalProtocolError(&sendspinerr.ProtocolError{Reason: "transient", Fatal: false}))
}
