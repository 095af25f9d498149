package handler

import (
	"errors"
	"sort"

	"github.com/jiecolao/pyquest-game/internal/core/event"
	"github.com/jiecolao/pyquest-game/internal/net"
	"github.com/jiecolao/pyquest-game/internal/net/packet"
	"github.com/jiecolao/pyquest-game/internal/scripting"
	"github.com/jiecolao/pyquest-game/internal/watch"
)

// HandleWatch processes C_WATCH. The registered watcher emits a
// ValueChanged event; the FeedSystem turns it into S_CHANGE next tick.
// Format: [opcode][path\0]
func HandleWatch(sess *net.Session, r *packet.Reader, deps *Deps) {
	path := r.ReadS()
	if path == "" {
		sendError(sess, "watch: empty path")
		return
	}
	sessID, bus := sess.ID, deps.Bus
	id := deps.Tracker.Watch(path, func(newValue, oldValue watch.Value) {
		event.Emit(bus, event.ValueChanged{
			SessionID: sessID,
			Path:      path,
			NewValue:  newValue,
			OldValue:  oldValue,
		})
	})
	deps.Observers.Add(sess.ID, path, id)
	sendWatching(sess, path, deps.Observers.Count(sess.ID, path))
}

// HandleUnwatch processes C_UNWATCH. Only this session's watchers on path
// are removed; the stored value stays.
// Format: [opcode][path\0]
func HandleUnwatch(sess *net.Session, r *packet.Reader, deps *Deps) {
	path := r.ReadS()
	for _, id := range deps.Observers.Drop(sess.ID, path) {
		deps.Tracker.Unwatch(id)
	}
	sendWatching(sess, path, 0)
}

// HandleGet processes C_GET.
// Format: [opcode][path\0]
func HandleGet(sess *net.Session, r *packet.Reader, deps *Deps) {
	path := r.ReadS()
	v := deps.Tracker.Value(path)
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_VALUE)
	w.WriteS(path)
	w.WriteBool(v.IsSet())
	w.WriteValue(v)
	sess.Send(w.Bytes())
}

// HandleGetAll processes C_GETALL. Paths are sorted.
func HandleGetAll(sess *net.Session, _ *packet.Reader, deps *Deps) {
	values := deps.Tracker.Values()
	paths := make([]string, 0, len(values))
	for p := range values {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	entries := make([][]byte, 0, len(paths))
	for _, p := range paths {
		e := packet.NewWriter()
		e.WriteS(p)
		e.WriteValue(values[p])
		entries = append(entries, e.Bytes())
	}
	sendList(sess, packet.S_OPCODE_VALUES, "values", entries)
}

// HandleReset processes C_RESET: every watcher and value is dropped once
// the jobs queued before it have run.
func HandleReset(sess *net.Session, _ *packet.Reader, deps *Deps) {
	submitClear(sess, deps, scripting.Job{Kind: scripting.JobReset, SessionID: sess.ID})
}

// HandleClear processes C_CLEAR: drops all watchers of path and its value.
// Format: [opcode][path\0]
func HandleClear(sess *net.Session, r *packet.Reader, deps *Deps) {
	path := r.ReadS()
	if path == "" {
		sendError(sess, "clear: empty path")
		return
	}
	submitClear(sess, deps, scripting.Job{Kind: scripting.JobClear, Path: path, SessionID: sess.ID})
}

func submitClear(sess *net.Session, deps *Deps, j scripting.Job) {
	if err := deps.Queue.Submit(j); errors.Is(err, scripting.ErrQueueFull) {
		sendError(sess, err.Error())
	}
}

// SendChange sends S_CHANGE.
// Format: [opcode][path\0][new\0][old set][old\0]
func SendChange(sess *net.Session, ev event.ValueChanged) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_CHANGE)
	w.WriteS(ev.Path)
	w.WriteValue(ev.NewValue)
	w.WriteBool(ev.OldValue.IsSet())
	w.WriteValue(ev.OldValue)
	sess.Send(w.Bytes())
}

// SendReset sends S_RESET. An empty path means everything was cleared.
func SendReset(sess *net.Session, path string) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_RESET)
	w.WriteS(path)
	sess.Send(w.Bytes())
}

func sendWatching(sess *net.Session, path string, count int) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_WATCHING)
	w.WriteS(path)
	w.WriteBool(count > 0)
	w.WriteH(uint16(count))
	sess.Send(w.Bytes())
}
