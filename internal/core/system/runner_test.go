package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	phase Phase
	name  string
	log   *[]string
}

func (p recorder) Phase() Phase { return p.phase }
func (p recorder) Update(_ time.Duration) { *p.log = append(*p.log, p.name) }

type panicky struct{}

func (panicky) Phase() Phase           { return PhaseUpdate }
func (panicky) Update(_ time.Duration) { panic("boom") }

type sleeper struct{ d time.Duration }

func (s sleeper) Phase() Phase           { return PhaseUpdate }
func (s sleeper) Update(_ time.Duration) { time.Sleep(s.d) }

func TestRunnerOrdersByPhase(t *testing.T) {
	var log []string
	r := NewRunner(0, zap.NewNop())
	r.Register(recorder{PhasePersist, "journal", &log})
	r.Register(recorder{PhaseUpdate, "scripts", &log})
	r.Register(recorder{PhaseInput, "input", &log})
	r.Register(recorder{PhaseUpdate, "scripts-2", &log})
	r.Register(recorder{PhasePreUpdate, "feed", &log})

	r.Tick(time.Millisecond)
	assert.Equal(t, []string{"input", "feed", "scripts", "scripts-2", "journal"}, log)
}

func TestRunnerSurvivesPanickingSystem(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	var log []string
	r := NewRunner(0, zap.New(core))
	r.Register(recorder{PhaseInput, "input", &log})
	r.Register(panicky{})
	r.Register(recorder{PhaseOutput, "output", &log})

	require.NotPanics(t, func() { r.Tick(time.Millisecond) })
	assert.Equal(t, []string{"input", "output"}, log)
	require.Equal(t, 1, logs.FilterMessage("system panicked").Len())
}

func TestRunnerWarnsOnSlowTick(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := NewRunner(time.Millisecond, zap.New(core))
	r.Register(sleeper{5 * time.Millisecond})

	took := r.Tick(time.Millisecond)
	assert.GreaterOrEqual(t, took, 5*time.Millisecond)
	assert.Equal(t, 1, logs.FilterMessage("slow tick").Len())
}
