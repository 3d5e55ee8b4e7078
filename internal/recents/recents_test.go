package recents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sendspin-protocol/sendspin-go/pkg/discovery"
)

func TestAddThenLoadReturnsServer(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	info := discovery.ServerInfo{Name: "living-room", Address: "10.0.0.5:5000", Path: "/sendspin"}
	s.Add(info, time.Unix(100, 0))

	entries := s.Load()
	require.Len(t, entries, 1)
	assert.Equal(t, info, entries[0].Server)
}

func TestLoadOrdersMostRecentFirst(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	a := discovery.ServerInfo{Name: "a"}
	b := discovery.ServerInfo{Name: "b"}
	s.Add(a, time.Unix(100, 0))
	s.Add(b, time.Unix(200, 0))

	entries := s.Load()
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Server.Name)
	assert.Equal(t, "a", entries[1].Server.Name)
}

func TestBoundedSizeEvictsOldest(t *testing.T) {
	s, err := NewWithSize(2)
	require.NoError(t, err)

	s.Add(discovery.ServerInfo{Name: "a"}, time.Unix(1, 0))
	s.Add(discovery.ServerInfo{Name: "b"}, time.Unix(2, 0))
	s.Add(discovery.ServerInfo{Name: "c"}, time.Unix(3, 0))

	entries := s.Load()
	assert.Len(t, entries, 2)
	for _, e := range entries {
		assert.NotEqual(t, "a", e.Server.Name)
	}
}
