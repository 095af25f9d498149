package handler

import "github.com/jiecolao/pyquest-game/internal/watch"

// Observers records the tracker registrations each console session made,
// so they can be removed on unwatch or disconnect. Game loop only.
type Observers struct {
	bySession map[uint64]map[string][]watch.WatchID
}

func NewObservers() *Observers {
	return &Observers{bySession: make(map[uint64]map[string][]watch.WatchID)}
}

func (o *Observers) Add(sessID uint64, path string, id watch.WatchID) {
	paths := o.bySession[sessID]
	if paths == nil {
		paths = make(map[string][]watch.WatchID)
		o.bySession[sessID] = paths
	}
	paths[path] = append(paths[path], id)
}

// Drop forgets and returns the session's registrations for path.
func (o *Observers) Drop(sessID uint64, path string) []watch.WatchID {
	paths := o.bySession[sessID]
	ids := paths[path]
	delete(paths, path)
	return ids
}

// DropSession forgets and returns every registration of the session.
func (o *Observers) DropSession(sessID uint64) []watch.WatchID {
	var ids []watch.WatchID
	for _, pathIDs := range o.bySession[sessID] {
		ids = append(ids, pathIDs...)
	}
	delete(o.bySession, sessID)
	return ids
}

// Forget drops bookkeeping after the tracker itself was cleared. An empty
// path means all paths.
func (o *Observers) Forget(path string) {
	if path == "" {
		clear(o.bySession)
		return
	}
	for _, paths := range o.bySession {
		delete(paths, path)
	}
}

// Count returns how many registrations sessID holds on path.
func (o *Observers) Count(sessID uint64, path string) int {
	return len(o.bySession[sessID][path])
}

// Watching reports whether sessID observes path.
func (o *Observers) Watching(sessID uint64, path string) bool {
	return o.Count(sessID, path) > 0
}
