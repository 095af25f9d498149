package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput     Phase = iota // 0: accept sessions, drain packet queues
	PhasePreUpdate              // 1: deliver last tick's change events
	PhaseUpdate                 // 2: run queued scripts
	PhaseOutput                 // 3: flush session output
	PhasePersist                // 4: journal flush
)

// System is the interface every game loop system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
