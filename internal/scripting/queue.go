package scripting

import "errors"

// ErrQueueFull is returned by Submit when the game loop is backed up.
var ErrQueueFull = errors.New("script queue full")

// JobKind selects what the game loop does with a Job.
type JobKind int

const (
	JobRun   JobKind = iota // run Source in Dialect
	JobReset                // drop every watcher and value
	JobClear                // drop Path's watchers and value
)

// Job is a unit of work handed to the game loop. Every mutation of the
// tracker that does not come from a script is queued as a Job too, so the
// loop stays the single writer.
type Job struct {
	Kind      JobKind
	Dialect   string
	Source    string
	Path      string
	SessionID uint64      // console session to answer, 0 if none
	Reply     chan Result // optional; must have room for one Result
}

// Queue is a bounded multi-producer queue drained by the ScriptSystem.
type Queue struct {
	ch chan Job
}

func NewQueue(size int) *Queue {
	return &Queue{ch: make(chan Job, size)}
}

// Submit enqueues j without blocking.
func (q *Queue) Submit(j Job) error {
	select {
	case q.ch <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// TryNext pops one job if any is waiting.
func (q *Queue) TryNext() (Job, bool) {
	select {
	case j := <-q.ch:
		return j, true
	default:
		return Job{}, false
	}
}

func (q *Queue) Len() int { return len(q.ch) }
