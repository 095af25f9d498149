package system

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Runner executes systems in phase order each tick. Systems sharing a
// phase keep their registration order. A panicking system is logged and
// skipped for that tick; the rest of the tick still runs.
type Runner struct {
	systems []System
	sorted  bool

	slowTick time.Duration // 0 disables the warning
	log      *zap.Logger
}

func NewRunner(slowTick time.Duration, log *zap.Logger) *Runner {
	return &Runner{
		systems:  make([]System, 0, 8),
		slowTick: slowTick,
		log:      log,
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Tick runs every system once and returns how long the tick took.
func (r *Runner) Tick(dt time.Duration) time.Duration {
	r.ensureSorted()
	start := time.Now()
	for _, s := range r.systems {
		r.update(s, dt)
	}
	took := time.Since(start)
	if r.slowTick > 0 && took > r.slowTick {
		r.log.Warn("slow tick", zap.Duration("took", took), zap.Duration("budget", r.slowTick))
	}
	return took
}

func (r *Runner) update(s System, dt time.Duration) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("system panicked",
				zap.String("system", fmt.Sprintf("%T", s)),
				zap.Int("phase", int(s.Phase())),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
		}
	}()
	s.Update(dt)
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
