// Package client is the top-level assembly point wiring Components
// A-I together: discovery (G) feeds the auto-connect policy (H), which
// drives the session state machine (F); F's clock filter (A) and
// jitter buffer (D) are shared with the playout scheduler (E); F's
// observable store (I) is the read surface a UI/CLI layer subscribes
// to. Grounded on the teacher repository's internal/app/player.go and
// pkg/resonate/player.go orchestration, generalized from a single
// Resonate connection to Sendspin's discovery-then-connect flow.
package client

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sendspin-protocol/sendspin-go/internal/artwork"
	"github.com/sendspin-protocol/sendspin-go/internal/recents"
	"github.com/sendspin-protocol/sendspin-go/pkg/audio/sink"
	"github.com/sendspin-protocol/sendspin-go/pkg/autoconnect"
	"github.com/sendspin-protocol/sendspin-go/pkg/clock"
	"github.com/sendspin-protocol/sendspin-go/pkg/discovery"
	"github.com/sendspin-protocol/sendspin-go/pkg/jitter"
	"github.com/sendspin-protocol/sendspin-go/pkg/playout"
	"github.com/sendspin-protocol/sendspin-go/pkg/session"
	"github.com/sendspin-protocol/sendspin-go/pkg/store"
)

// Config configures a Player at construction.
type Config struct {
	// Session identifies this client to the server, per §4.6.
	Session session.Config

	// PlayoutOffsetMS seeds the scheduler's playout offset (§4.5),
	// clamped to [-1000, 1000].
	PlayoutOffsetMS int64

	// RecentsSize bounds the remembered-servers store (§6); zero uses
	// recents.DefaultSize.
	RecentsSize int

	// DiscoveryOptions configures Component G.
	DiscoveryOptions []discovery.Option
}

// Option configures a Player at construction.
type Option func(*Player)

// WithLogger injects a structured logger used by every wired component.
func WithLogger(l *zap.Logger) Option {
	return func(p *Player) { p.logger = l }
}

// WithSink overrides the default oto-backed audio sink, mainly for
// tests.
func WithSink(snk sink.Sink) Option {
	return func(p *Player) { p.sink = snk }
}

// WithDialer overrides Component F's channel dialer, mainly for tests.
func WithDialer(d session.Dialer) Option {
	return func(p *Player) { p.dialer = d }
}

// Player is the assembled runtime: discovery, auto-connect policy,
// session, playout scheduler, and artwork fetch, wired together and
// exposing the combined observable read surface a UI subscribes to.
type Player struct {
	logger *zap.Logger
	cfg    Config
	sink   sink.Sink
	dialer session.Dialer

	sess      *session.Session
	scheduler *playout.Scheduler
	adapter   *discovery.Adapter
	policy    *autoconnect.Policy
	recents   *recents.Store
	artDL     *artwork.Downloader

	// Artwork is a derived observable: the local cache path of the
	// artwork most recently fetched for Store().Metadata's artwork_url,
	// per §9's artwork-fetch supplement.
	Artwork *store.Observable[string]

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	unsubArt    func()
	lastArtURL  string
}

// New assembles a Player. Discovery is constructed but not started
// until Start.
func New(cfg Config, opts ...Option) (*Player, error) {
	p := &Player{
		logger: zap.NewNop(),
		cfg:    cfg,
		dialer: session.DialWebsocket,
		Artwork: store.NewObservable(""),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.sink == nil {
		p.sink = sink.NewOto(p.logger)
	}

	size := cfg.RecentsSize
	if size <= 0 {
		size = recents.DefaultSize
	}
	rec, err := recents.NewWithSize(size)
	if err != nil {
		return nil, fmt.Errorf("construct recents store: %w", err)
	}
	p.recents = rec

	artDL, err := artwork.NewDownloader(artwork.WithLogger(p.logger))
	if err != nil {
		return nil, fmt.Errorf("construct artwork downloader: %w", err)
	}
	p.artDL = artDL

	p.sess = session.New(cfg.Session,
		session.WithLogger(p.logger),
		session.WithDialer(p.dialer),
		session.WithSink(p.sink),
		session.WithClockFilter(clock.New(clock.WithLogger(p.logger))),
		session.WithJitterBuffer(jitter.New(jitter.WithLogger(p.logger), jitter.WithPlayoutOffsetMS(cfg.PlayoutOffsetMS))),
	)

	p.scheduler = playout.New(p.sess.Filter(), p.sess.Buffer(), p.sink,
		playout.WithLogger(p.logger),
		playout.WithPlayoutOffsetMS(cfg.PlayoutOffsetMS),
	)

	p.policy = autoconnect.New(p.sess, p.recents, autoconnect.WithLogger(p.logger))

	discoveryOpts := append([]discovery.Option{discovery.WithLogger(p.logger)}, cfg.DiscoveryOptions...)
	p.adapter = discovery.New(
		func(server discovery.ServerInfo) { p.policy.OnDiscovered(p.runningCtx(), server) },
		func(name string) { p.logger.Info("server lost", zap.String("name", name)) },
		discoveryOpts...,
	)

	return p, nil
}

func (p *Player) runningCtx() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx != nil {
		return p.ctx
	}
	return context.Background()
}

// Start begins browsing for servers (Component G) and the playout
// scheduler (Component E). Auto-connect (Component H) fires from
// discovery callbacks; ConnectManually can be called before or after
// Start.
func (p *Player) Start(ctx context.Context) {
	p.mu.Lock()
	ctx, cancel := context.WithCancel(ctx)
	p.ctx = ctx
	p.cancel = cancel
	p.mu.Unlock()

	p.unsubArt = p.sess.Store().Metadata.Subscribe(p.onMetadata)

	go p.scheduler.Run(ctx)
	p.adapter.Start(ctx)
}

// Stop tears down discovery, the session, and the scheduler.
func (p *Player) Stop() {
	p.adapter.Stop()
	p.policy.Disconnect()

	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	unsub := p.unsubArt
	p.unsubArt = nil
	p.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	_ = p.sink.Close()
}

// ConnectManually drives Component H's manual-override path directly,
// e.g. from a "connect to" UI action instead of a discovery event.
func (p *Player) ConnectManually(ctx context.Context, server discovery.ServerInfo) error {
	return p.policy.ConnectManually(ctx, server)
}

// Disconnect drives Component H's explicit disconnect path.
func (p *Player) Disconnect() {
	p.policy.Disconnect()
}

// Recents returns the bounded recent-servers store (§6).
func (p *Player) Recents() *recents.Store { return p.recents }

// Store returns Component I's observable snapshots.
func (p *Player) Store() *session.Store { return p.sess.Store() }

// Playback controls delegate straight to Component F's outbound
// one-shot commands (§4.6).
func (p *Player) Play() error     { return p.sess.Play() }
func (p *Player) Pause() error    { return p.sess.Pause() }
func (p *Player) StopPlayback() error { return p.sess.Stop() }
func (p *Player) Next() error     { return p.sess.Next() }
func (p *Player) Previous() error { return p.sess.Previous() }

// SetGroupVolume/SetGroupMute request controller-scope changes.
func (p *Player) SetGroupVolume(volume0To100 int) error { return p.sess.SetGroupVolume(volume0To100) }
func (p *Player) SetGroupMute(muted bool) error         { return p.sess.SetGroupMute(muted) }

// SetLocalVolume/SetLocalMute report this client's local sink state to
// the server (§4.6, §9 echo suppression).
func (p *Player) SetLocalVolume(volume0To100 int) error { return p.sess.SetLocalVolume(volume0To100) }
func (p *Player) SetLocalMute(muted bool) error         { return p.sess.SetLocalMute(muted) }

// SetPlayoutOffsetMS adjusts Component E's playout offset at runtime.
func (p *Player) SetPlayoutOffsetMS(ms int64) { p.scheduler.SetPlayoutOffsetMS(ms) }

// onMetadata is Component I's Metadata subscriber: it fetches artwork
// for newly-seen artwork_url values and republishes the local cache
// path via Artwork, per §9's artwork-fetch supplement.
func (p *Player) onMetadata(meta session.Metadata) {
	if meta.ArtworkURL == nil || *meta.ArtworkURL == "" {
		return
	}

	p.mu.Lock()
	if p.lastArtURL == *meta.ArtworkURL {
		p.mu.Unlock()
		return
	}
	p.lastArtURL = *meta.ArtworkURL
	p.mu.Unlock()

	url := *meta.ArtworkURL
	go func() {
		path, err := p.artDL.Download(url)
		if err != nil {
			p.logger.Warn("artwork download failed", zap.String("url", url), zap.Error(err))
			return
		}
		p.Artwork.Set(path)
	}()
}
