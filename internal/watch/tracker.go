package watch

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Func is the callback signature for watchers. oldValue is Unset on the
// first write to a path.
type Func func(newValue, oldValue Value)

// WatchID identifies one registration. IDs are never reused.
type WatchID uint64

type entry struct {
	id WatchID
	fn Func
}

// Tracker is the path store plus the watcher registry. One instance is
// shared by every script run and every observer of a server.
//
// Dispatch is expected to be called from a single goroutine (the game loop).
// The mutex only guards the maps so that observers on other goroutines can
// read values and register watchers. Callbacks run outside the lock.
type Tracker struct {
	mu       sync.RWMutex
	values   map[string]Value
	watchers map[string][]entry
	byID     map[WatchID]string
	nextID   atomic.Uint64
	log      *zap.Logger
}

func NewTracker(log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		values:   make(map[string]Value),
		watchers: make(map[string][]entry),
		byID:     make(map[WatchID]string),
		log:      log,
	}
}

// Watch appends fn to path's watcher list.
func (t *Tracker) Watch(path string, fn Func) WatchID {
	id := WatchID(t.nextID.Add(1))
	t.mu.Lock()
	t.watchers[path] = append(t.watchers[path], entry{id: id, fn: fn})
	t.byID[id] = path
	t.mu.Unlock()
	return id
}

// UnwatchAll drops every watcher and every stored value.
func (t *Tracker) UnwatchAll() {
	t.mu.Lock()
	clear(t.watchers)
	clear(t.values)
	clear(t.byID)
	t.mu.Unlock()
}

// UnwatchPath drops path's watchers and its stored value.
func (t *Tracker) UnwatchPath(path string) {
	t.mu.Lock()
	for _, e := range t.watchers[path] {
		delete(t.byID, e.id)
	}
	delete(t.watchers, path)
	delete(t.values, path)
	t.mu.Unlock()
}

// Unwatch removes a single registration, keeping the order of the others.
// Stored values are untouched. Returns false if id is not registered.
func (t *Tracker) Unwatch(id WatchID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	path, ok := t.byID[id]
	if !ok {
		return false
	}
	delete(t.byID, id)
	list := t.watchers[path]
	for i, e := range list {
		if e.id != id {
			continue
		}
		// copy, not in place: an in-flight dispatch may hold the old slice
		next := make([]entry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(t.watchers, path)
		} else {
			t.watchers[path] = next
		}
		break
	}
	return true
}

// Value returns the current value of path, or Unset.
func (t *Tracker) Value(path string) Value {
	t.mu.RLock()
	v := t.values[path]
	t.mu.RUnlock()
	return v
}

// Values returns a snapshot copy of every stored value.
func (t *Tracker) Values() map[string]Value {
	t.mu.RLock()
	out := make(map[string]Value, len(t.values))
	for k, v := range t.values {
		out[k] = v
	}
	t.mu.RUnlock()
	return out
}

// WatcherCount returns the number of active registrations for path.
func (t *Tracker) WatcherCount(path string) int {
	t.mu.RLock()
	n := len(t.watchers[path])
	t.mu.RUnlock()
	return n
}

// Dispatch commits newValue for path and notifies path's watchers in
// registration order with (newValue, oldValue). Equal writes still notify.
// A panicking watcher is logged and skipped; the store update and the
// remaining watchers are unaffected.
func (t *Tracker) Dispatch(path string, newValue Value) {
	t.mu.Lock()
	old := t.values[path]
	t.values[path] = newValue
	list := t.watchers[path]
	t.mu.Unlock()

	for _, e := range list {
		t.safeCall(path, e, newValue, old)
	}
}

// safeCall runs one watcher with panic recovery.
func (t *Tracker) safeCall(path string, e entry, newValue, oldValue Value) {
	defer func() {
		if rec := recover(); rec != nil {
			t.log.Error("watcher callback failed",
				zap.String("path", path),
				zap.Uint64("watch_id", uint64(e.id)),
				zap.String("panic", fmt.Sprint(rec)),
			)
		}
	}()
	e.fn(newValue, oldValue)
}
