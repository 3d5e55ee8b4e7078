// Package store implements Component I: a fan-out observable holding the
// latest snapshot of a piece of state, delivering the current value
// immediately on subscription and every subsequent distinct value
// thereafter. Grounded on the observer-callback pattern in the teacher
// repository's pkg/resonate player (OnMetadata/OnStateChange/OnError),
// generalized into a reusable generic primitive with structural
// equality and serialized writes.
package store

import (
	"reflect"
	"sync"
)

// Observer receives values published to an Observable[T].
type Observer[T any] func(T)

// Observable holds the latest snapshot of a value of type T and fans it
// out to any number of subscribed observers. Writes are serialized
// under a single lock; observers are invoked from the writer's
// goroutine and must not block.
type Observable[T any] struct {
	mu        sync.Mutex
	value     T
	observers map[int]Observer[T]
	nextID    int
}

// NewObservable constructs an Observable seeded with the given initial
// value.
func NewObservable[T any](initial T) *Observable[T] {
	return &Observable[T]{
		value:     initial,
		observers: make(map[int]Observer[T]),
	}
}

// Subscribe registers obs, immediately invokes it with the current
// value, and returns an unsubscribe function.
func (o *Observable[T]) Subscribe(obs Observer[T]) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.observers[id] = obs
	current := o.value
	o.mu.Unlock()

	obs(current)

	return func() {
		o.mu.Lock()
		delete(o.observers, id)
		o.mu.Unlock()
	}
}

// Set publishes a new value. If it is structurally equal to the current
// value, no notification fires. Otherwise every subscribed observer is
// invoked, in subscription order, with the new value.
func (o *Observable[T]) Set(value T) {
	o.mu.Lock()
	if reflect.DeepEqual(o.value, value) {
		o.mu.Unlock()
		return
	}
	o.value = value
	obs := make([]Observer[T], 0, len(o.observers))
	for id := 0; id < o.nextID; id++ {
		if ob, ok := o.observers[id]; ok {
			obs = append(obs, ob)
		}
	}
	o.mu.Unlock()

	for _, ob := range obs {
		ob(value)
	}
}

// Get returns the current value.
func (o *Observable[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}
