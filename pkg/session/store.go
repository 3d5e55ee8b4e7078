package session

import (
	"github.com/sendspin-protocol/sendspin-go/pkg/audio"
	"github.com/sendspin-protocol/sendspin-go/pkg/jitter"
	"github.com/sendspin-protocol/sendspin-go/pkg/store"
)

// Store is Component I: the fan-out of the seven observable snapshots F
// publishes to. F is the sole writer; any number of external observers
// may subscribe to any slot.
type Store struct {
	Connection   *store.Observable[ConnectionState]
	Stream       *store.Observable[audio.StreamDescriptor]
	Metadata     *store.Observable[Metadata]
	Buffer       *store.Observable[jitter.Stats]
	Controller   *store.Observable[ControllerState]
	PlayerVolume *store.Observable[PlayerVolumeState]
	PlayerMute   *store.Observable[PlayerMuteState]
}

// NewStore constructs a Store with every slot at its zero-value initial
// snapshot.
func NewStore() *Store {
	return &Store{
		Connection:   store.NewObservable(Disconnected),
		Stream:       store.NewObservable(audio.StreamDescriptor{}),
		Metadata:     store.NewObservable(Metadata{}),
		Buffer:       store.NewObservable(jitter.Stats{}),
		Controller:   store.NewObservable(ControllerState{}),
		PlayerVolume: store.NewObservable(PlayerVolumeState{}),
		PlayerMute:   store.NewObservable(PlayerMuteState{}),
	}
}

// reset restores every slot to its initial snapshot, per §4.6's
// disconnect contract ("reset all observable state to initial values").
func (s *Store) reset() {
	s.Connection.Set(Disconnected)
	s.Stream.Set(audio.StreamDescriptor{})
	s.Metadata.Set(Metadata{})
	s.Buffer.Set(jitter.Stats{})
	s.Controller.Set(ControllerState{})
	s.PlayerVolume.Set(PlayerVolumeState{})
	s.PlayerMute.Set(PlayerMuteState{})
}
