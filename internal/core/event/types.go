package event

import (
	"github.com/jiecolao/pyquest-game/internal/scripting"
	"github.com/jiecolao/pyquest-game/internal/watch"
)

// ValueChanged is emitted by a console observer's watcher. SessionID names
// the console session that registered it.
type ValueChanged struct {
	SessionID uint64
	Path      string
	NewValue  watch.Value
	OldValue  watch.Value
}

// RunFinished is emitted after the ScriptSystem completes a run.
type RunFinished struct {
	SessionID uint64 // console session that submitted the run, 0 for web
	Result    scripting.Result
}

// TrackerReset is emitted after watchers and values were cleared. An empty
// Path means everything was cleared.
type TrackerReset struct {
	Path string
}
