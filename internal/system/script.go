package system

import (
	"context"
	"time"

	"github.com/jiecolao/pyquest-game/internal/core/event"
	coresys "github.com/jiecolao/pyquest-game/internal/core/system"
	"github.com/jiecolao/pyquest-game/internal/handler"
	"github.com/jiecolao/pyquest-game/internal/scripting"
	"github.com/jiecolao/pyquest-game/internal/watch"
	"go.uber.org/zap"
)

// ScriptSystem drains the job queue on the game loop, so every dispatch and
// every tracker reset happens on one goroutine. Phase 2 (Update).
type ScriptSystem struct {
	queue      *scripting.Queue
	runtime    *scripting.Runtime
	tracker    *watch.Tracker
	bus        *event.Bus
	journal    handler.Recorder
	maxPerTick int
	onClear    []func(path string)
	log        *zap.Logger
}

func NewScriptSystem(
	queue *scripting.Queue,
	runtime *scripting.Runtime,
	tracker *watch.Tracker,
	bus *event.Bus,
	journal handler.Recorder,
	maxPerTick int,
	log *zap.Logger,
) *ScriptSystem {
	return &ScriptSystem{
		queue:      queue,
		runtime:    runtime,
		tracker:    tracker,
		bus:        bus,
		journal:    journal,
		maxPerTick: maxPerTick,
		log:        log,
	}
}

// OnClear registers fn to run right after the tracker drops watchers, with
// the cleared path ("" for everything). Observers use it to forget the
// registration ids they hold.
func (s *ScriptSystem) OnClear(fn func(path string)) {
	s.onClear = append(s.onClear, fn)
}

func (s *ScriptSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *ScriptSystem) Update(_ time.Duration) {
	for i := 0; i < s.maxPerTick; i++ {
		job, ok := s.queue.TryNext()
		if !ok {
			return
		}
		s.process(job)
	}
}

func (s *ScriptSystem) process(job scripting.Job) {
	var res scripting.Result
	switch job.Kind {
	case scripting.JobRun:
		res = s.runtime.Run(context.Background(), job.Dialect, job.Source)
		if s.journal != nil {
			s.journal.Record(job.SessionID, res)
		}
		event.Emit(s.bus, event.RunFinished{SessionID: job.SessionID, Result: res})
	case scripting.JobReset:
		s.tracker.UnwatchAll()
		s.cleared("")
		res.Accepted = true
	case scripting.JobClear:
		s.tracker.UnwatchPath(job.Path)
		s.cleared(job.Path)
		res.Accepted = true
	default:
		s.log.Warn("unknown job kind", zap.Int("kind", int(job.Kind)))
		return
	}

	if job.Reply != nil {
		select {
		case job.Reply <- res:
		default:
			s.log.Warn("job reply dropped", zap.String("run", res.ID.String()))
		}
	}
}

func (s *ScriptSystem) cleared(path string) {
	for _, fn := range s.onClear {
		fn(path)
	}
	event.Emit(s.bus, event.TrackerReset{Path: path})
	s.log.Info("watchers cleared", zap.String("path", path))
}
