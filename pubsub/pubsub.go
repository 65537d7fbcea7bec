// Package pubsub is corral's in-process change-notification bus: a keyed
// map from subscription key to a set of callbacks, guarded by a single
// mutex the way the teacher guards UI.data with UI.refreshLock
// (ui/ui.go). Keys are either AllKey or a specific tool index
// (spec.md §4.6).
package pubsub

import "sync"

// AllKey is the sentinel subscription key that receives every
// publication regardless of index.
const AllKey = -1

// Callback is invoked synchronously on the publisher's goroutine. It
// must not block. It may call back into the Bus, since Publish invokes
// callbacks after releasing the Bus's lock.
type Callback func(index int)

// Unsubscribe removes a previously registered callback. Calling it more
// than once is a no-op.
type Unsubscribe func()

type subscription struct {
	id int
	cb Callback
}

// Bus is a keyed publish/subscribe facility. The zero value is not
// usable; construct with New.
type Bus struct {
	mu        sync.Mutex
	subs      map[int][]subscription
	nextSubID int
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[int][]subscription)}
}

// Subscribe registers cb under key (AllKey or a tool index) and returns a
// handle to unregister it later.
func (b *Bus) Subscribe(key int, cb Callback) Unsubscribe {
	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.subs[key] = append(b.subs[key], subscription{id: id, cb: cb})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			list := b.subs[key]
			for i, s := range list {
				if s.id == id {
					b.subs[key] = append(list[:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish invokes every callback registered under index and every
// callback registered under AllKey. Callbacks are copied out from under
// the lock before being invoked, so a callback may itself call Subscribe
// or Unsubscribe without deadlocking.
func (b *Bus) Publish(index int) {
	b.mu.Lock()
	var callbacks []Callback
	for _, s := range b.subs[index] {
		callbacks = append(callbacks, s.cb)
	}
	for _, s := range b.subs[AllKey] {
		callbacks = append(callbacks, s.cb)
	}
	b.mu.Unlock()

	for _, cb := range callbacks {
		cb(index)
	}
}

// ClearIndexed drops every subscription registered under a specific tool
// index (not AllKey), used on hot reload when indices have been
// reassigned (spec.md §4.6, §9).
func (b *Bus) ClearIndexed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key := range b.subs {
		if key != AllKey {
			delete(b.subs, key)
		}
	}
}
