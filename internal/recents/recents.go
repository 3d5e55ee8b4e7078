// Package recents implements the bounded recent-servers store §6's
// external-collaborator contract and §9's "global singleton" design
// note ask for: a single explicit collaborator, constructed once per
// process and passed by reference to whatever needs it (here,
// pkg/autoconnect's policy), rather than a package-level global.
package recents

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sendspin-protocol/sendspin-go/pkg/discovery"
)

// DefaultSize is the default bound on remembered servers.
const DefaultSize = 10

// Entry is one remembered server, with the time it was last connected.
type Entry struct {
	Server discovery.ServerInfo
	At     time.Time
}

// Store is a bounded, most-recently-used store of servers previously
// connected to.
type Store struct {
	mu    sync.Mutex
	cache *lru.Cache[string, Entry]
}

// New constructs a Store bounded to DefaultSize entries.
func New() (*Store, error) {
	return NewWithSize(DefaultSize)
}

// NewWithSize constructs a Store bounded to size entries.
func NewWithSize(size int) (*Store, error) {
	cache, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, err
	}
	return &Store{cache: cache}, nil
}

// Add records a connection to server at the given time, evicting the
// least-recently-used entry if the store is at capacity.
func (s *Store) Add(server discovery.ServerInfo, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Add(server.Name, Entry{Server: server, At: at})
}

// Load returns every remembered server, most-recently-connected first.
func (s *Store) Load() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.cache.Keys()
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		if v, ok := s.cache.Peek(k); ok {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out
}
