// Package autoconnect implements Component H: the policy that chooses a
// server from Component G's discovery events and drives Component F,
// distinguishing automatic first-contact from manual override, per
// §4.8.
package autoconnect

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sendspin-protocol/sendspin-go/pkg/discovery"
)

// Mode is the policy's current operating mode.
type Mode int

// Operating modes, per §4.8.
const (
	Auto Mode = iota
	Manual
)

func (m Mode) String() string {
	if m == Manual {
		return "manual"
	}
	return "auto"
}

// Connector is the subset of Component F the policy drives.
type Connector interface {
	Connect(ctx context.Context, url string) error
	Disconnect()
}

// Recents records servers the policy has connected to.
type Recents interface {
	Add(server discovery.ServerInfo, at time.Time)
}

// Policy is Component H.
type Policy struct {
	logger    *zap.Logger
	connector Connector
	recents   Recents
	now       func() time.Time

	mu               sync.Mutex
	mode             Mode
	hasAutoConnected bool
}

// Option configures a Policy at construction.
type Option func(*Policy)

// WithLogger injects a structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Policy) { p.logger = l }
}

// New constructs a Policy starting in AUTO mode with
// has_auto_connected=false, per §4.8. recents may be nil if connection
// history need not be recorded.
func New(connector Connector, recents Recents, opts ...Option) *Policy {
	p := &Policy{
		logger:    zap.NewNop(),
		connector: connector,
		recents:   recents,
		now:       time.Now,
		mode:      Auto,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Mode reports the policy's current mode.
func (p *Policy) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// OnDiscovered handles Component G's on_discovered(s) event. On the
// first discovery while AUTO and not yet auto-connected, it connects
// and records the server; every other discovery while AUTO or MANUAL is
// a no-op — server loss/rediscovery never triggers a reconnect to a
// different server (§4.8; S6).
func (p *Policy) OnDiscovered(ctx context.Context, server discovery.ServerInfo) {
	p.mu.Lock()
	if p.mode != Auto || p.hasAutoConnected {
		p.mu.Unlock()
		return
	}
	p.hasAutoConnected = true
	p.mu.Unlock()

	p.logger.Info("auto-connecting to discovered server", zap.String("name", server.Name))
	if err := p.connector.Connect(ctx, server.URL()); err != nil {
		p.logger.Warn("auto-connect failed", zap.Error(err))
		return
	}
	if p.recents != nil {
		p.recents.Add(server, p.now())
	}
}

// ConnectManually transitions to MANUAL regardless of the previous
// mode, disconnects any existing connection, and connects to server.
func (p *Policy) ConnectManually(ctx context.Context, server discovery.ServerInfo) error {
	p.mu.Lock()
	p.mode = Manual
	p.mu.Unlock()

	p.connector.Disconnect()
	if err := p.connector.Connect(ctx, server.URL()); err != nil {
		return err
	}
	if p.recents != nil {
		p.recents.Add(server, p.now())
	}
	return nil
}

// Disconnect transitions to MANUAL and disconnects Component F.
func (p *Policy) Disconnect() {
	p.mu.Lock()
	p.mode = Manual
	p.mu.Unlock()

	p.connector.Disconnect()
}
