// Package discovery implements Component G: an mDNS-backed adapter that
// emits discovered/lost Sendspin servers. Grounded on the teacher
// repository's internal/discovery/mdns.go browse loop, generalized to
// the spec's callback contract and TXT-record path resolution instead
// of a hardcoded path.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

// ServiceType is the mDNS service type Sendspin servers advertise under.
const ServiceType = "_sendspin-server._tcp"

// DefaultPath is used when a discovered service carries no `path` TXT
// record.
const DefaultPath = "/sendspin"

const defaultQueryInterval = 5 * time.Second
const defaultLossTimeout = 15 * time.Second

// ServerInfo describes one discovered Sendspin server.
type ServerInfo struct {
	Name    string
	Address string // host:port
	Path    string
}

// URL builds the WebSocket-style channel URL for this server.
func (s ServerInfo) URL() string {
	return fmt.Sprintf("ws://%s%s", s.Address, s.Path)
}

// Adapter periodically browses for Sendspin servers via mDNS and
// reports arrivals and departures through the given callbacks.
type Adapter struct {
	logger        *zap.Logger
	onDiscovered  func(ServerInfo)
	onLost        func(name string)
	queryInterval time.Duration
	lossTimeout   time.Duration

	mu      sync.Mutex
	seen    map[string]time.Time
	cancel  context.CancelFunc
	running bool
}

// Option configures an Adapter at construction.
type Option func(*Adapter)

// WithLogger injects a structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithQueryInterval overrides how often the adapter re-queries mDNS.
func WithQueryInterval(d time.Duration) Option {
	return func(a *Adapter) { a.queryInterval = d }
}

// WithLossTimeout overrides how long a server may go unseen before it
// is reported lost.
func WithLossTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.lossTimeout = d }
}

// New constructs an Adapter. onDiscovered and onLost must be non-nil and
// must not block.
func New(onDiscovered func(ServerInfo), onLost func(name string), opts ...Option) *Adapter {
	a := &Adapter{
		logger:        zap.NewNop(),
		onDiscovered:  onDiscovered,
		onLost:        onLost,
		queryInterval: defaultQueryInterval,
		lossTimeout:   defaultLossTimeout,
		seen:          make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start begins periodic browsing until Stop is called or ctx is
// cancelled.
func (a *Adapter) Start(ctx context.Context) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.running = true
	a.mu.Unlock()

	go a.browseLoop(ctx)
}

// Stop halts browsing.
func (a *Adapter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
	a.running = false
}

func (a *Adapter) browseLoop(ctx context.Context) {
	ticker := time.NewTicker(a.queryInterval)
	defer ticker.Stop()

	a.queryOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.queryOnce()
			a.expireStale()
		}
	}
}

func (a *Adapter) queryOnce() {
	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for entry := range entries {
			a.handleEntry(entry)
		}
	}()

	params := &mdns.QueryParam{
		Service: ServiceType,
		Domain:  "local",
		Timeout: a.queryInterval,
		Entries: entries,
	}
	if err := mdns.Query(params); err != nil {
		a.logger.Debug("mdns query failed", zap.Error(err))
	}
	close(entries)
	<-done
}

func (a *Adapter) handleEntry(entry *mdns.ServiceEntry) {
	if entry.AddrV4 == nil || entry.Port == 0 {
		return
	}

	info := ServerInfo{
		Name:    entry.Name,
		Address: fmt.Sprintf("%s:%d", entry.AddrV4.String(), entry.Port),
		Path:    pathFromTXT(entry.InfoFields),
	}

	a.mu.Lock()
	_, known := a.seen[info.Name]
	a.seen[info.Name] = time.Now()
	a.mu.Unlock()

	if !known {
		a.logger.Info("server discovered", zap.String("name", info.Name), zap.String("address", info.Address))
		a.onDiscovered(info)
	}
}

func (a *Adapter) expireStale() {
	cutoff := time.Now().Add(-a.lossTimeout)

	a.mu.Lock()
	var lost []string
	for name, lastSeen := range a.seen {
		if lastSeen.Before(cutoff) {
			lost = append(lost, name)
			delete(a.seen, name)
		}
	}
	a.mu.Unlock()

	for _, name := range lost {
		a.logger.Info("server lost", zap.String("name", name))
		a.onLost(name)
	}
}

// pathFromTXT looks for a `path=` key among mDNS TXT fields, falling
// back to DefaultPath when absent.
func pathFromTXT(fields []string) string {
	for _, f := range fields {
		if k, v, ok := strings.Cut(f, "="); ok && k == "path" {
			return v
		}
	}
	return DefaultPath
}
