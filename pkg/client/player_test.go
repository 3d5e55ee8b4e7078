package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendspin-protocol/sendspin-go/pkg/discovery"
	"github.com/sendspin-protocol/sendspin-go/pkg/session"
)

// fakeSink is a no-op sink.Sink, avoiding real audio device access in
// tests.
type fakeSink struct {
	volume int
	muted  bool
}

func (f *fakeSink) Open(int, int, int) error   { return nil }
func (f *fakeSink) Write([]int32) error        { return nil }
func (f *fakeSink) Pause() error               { return nil }
func (f *fakeSink) Close() error               { return nil }
func (f *fakeSink) VolumeGet() int             { return f.volume }
func (f *fakeSink) VolumeSet(volume int)       { f.volume = volume }
func (f *fakeSink) MuteGet() bool              { return f.muted }
func (f *fakeSink) MuteSet(muted bool)         { f.muted = muted }

// fakeConn is a minimal in-process session.Conn that completes the
// hello/hello_ack handshake and then blocks until closed.
type fakeConn struct {
	sent   chan []byte
	closed chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{sent: make(chan []byte, 8), closed: make(chan struct{})}
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	select {
	case f.sent <- []byte("sent"):
	case <-f.closed:
	}
	return nil
}
func (f *fakeConn) WriteMessage(int, []byte) error { return nil }
func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
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

func TestConnectManuallyRecordsRecentServer(t *testing.T) {
	p, err := New(Config{}, WithDialer(func(ctx context.Context, url string) (session.Conn, error) {
		return newFakeConn(), nil
	}), WithSink(&fakeSink{}))
	require.NoError(t, err)

	p.Start(context.Background())
	defer p.Stop()

	server := discovery.ServerInfo{Name: "kitchen", Address: "10.0.0.9:5000", Path: "/sendspin"}
	require.NoError(t, p.ConnectManually(context.Background(), server))

	deadline := time.After(time.Second)
	for len(p.Recents().Load()) == 0 {
		select {
		case <-deadline:
			t.Fatal("server never recorded to recents")
		case <-time.After(5 * time.Millisecond):
		}
	}

	entries := p.Recents().Load()
	require.Len(t, entries, 1)
	assert.Equal(t, "kitchen", entries[0].Server.Name)
}

func TestArtworkFetchPublishesPathOnNewMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-image-bytes"))
	}))
	defer srv.Close()

	p, err := New(Config{}, WithDialer(func(ctx context.Context, url string) (session.Conn, error) {
		return newFakeConn(), nil
	}), WithSink(&fakeSink{}))
	require.NoError(t, err)

	p.Start(context.Background())
	defer p.Stop()

	url := srv.URL + "/art.jpg"
	p.onMetadata(session.Metadata{ArtworkURL: &url})

	deadline := time.After(time.Second)
	for p.Artwork.Get() == "" {
		select {
		case <-deadline:
			t.Fatal("artwork path never published")
		case <-time.After(5 * time.Millisecond):
		}
	}

	assert.NotEmpty(t, p.Artwork.Get())
}

func TestOnMetadataSkipsDuplicateArtworkURL(t *testing.T) {
	p, err := New(Config{}, WithDialer(func(ctx context.Context, url string) (session.Conn, error) {
		return newFakeConn(), nil
	}), WithSink(&fakeSink{}))
	require.NoError(t, err)

	url := "http://example.invalid/art.jpg"
	p.lastArtURL = url

	p.onMetadata(session.Metadata{ArtworkURL: &url})

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, p.Artwork.Get())
}
