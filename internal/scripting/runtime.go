package scripting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jiecolao/pyquest-game/internal/config"
	"github.com/jiecolao/pyquest-game/internal/entity"
	"go.uber.org/zap"
)

// ErrUnknownDialect is returned for a dialect name with no interpreter.
var ErrUnknownDialect = errors.New("unknown script dialect")

// Result describes one submitted script.
type Result struct {
	ID       uuid.UUID
	Dialect  string
	Source   string
	Accepted bool
	Reason   string // admission rejection, empty when accepted
	Output   string // transcript; "Error: ..." on failure
	Started  time.Time
	Duration time.Duration
}

// Failed reports whether the run ended with an error in its transcript.
func (r Result) Failed() bool { return containsError(r.Output) }

// Runtime owns the dialects and binds fresh entities to the dispatcher for
// every run. Runs must happen on one goroutine at a time (the game loop).
type Runtime struct {
	dialects map[string]Dialect
	def      string
	d        entity.Dispatcher
	timeout  time.Duration
	log      *zap.Logger
}

func NewRuntime(d entity.Dispatcher, cfg config.ScriptConfig, log *zap.Logger) (*Runtime, error) {
	r := &Runtime{
		dialects: make(map[string]Dialect),
		def:      cfg.Dialect,
		d:        d,
		timeout:  cfg.Timeout,
		log:      log,
	}
	for _, dl := range []Dialect{NewPython(cfg.MaxSteps), NewLua(), NewJS()} {
		r.dialects[dl.Name()] = dl
	}
	if _, ok := r.dialects[r.def]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, r.def)
	}
	return r, nil
}

// Default returns the configured dialect name.
func (r *Runtime) Default() string { return r.def }

// Dialect looks up name, falling back to the default for "".
func (r *Runtime) Dialect(name string) (Dialect, error) {
	if name == "" {
		name = r.def
	}
	dl, ok := r.dialects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, name)
	}
	return dl, nil
}

// Validate runs the admission check only.
func (r *Runtime) Validate(dialect, src string) error {
	dl, err := r.Dialect(dialect)
	if err != nil {
		return err
	}
	return dl.Admit(src)
}

// Admit runs the admission check and returns the Result a rejected script
// ends with. Transports call it before queuing so rejected scripts never
// reach the game loop.
func (r *Runtime) Admit(dialect, src string) Result {
	res := Result{ID: uuid.New(), Dialect: dialect, Source: src, Started: time.Now()}
	dl, err := r.Dialect(dialect)
	if err != nil {
		res.Reason = err.Error()
		return res
	}
	res.Dialect = dl.Name()
	if err := dl.Admit(src); err != nil {
		res.Reason = err.Error()
		r.log.Info("script rejected", zap.String("run", res.ID.String()), zap.Error(err))
		return res
	}
	res.Accepted = true
	return res
}

// Run admits and executes src. It never returns an error: an unknown
// dialect or a rejected script yields Accepted=false with a Reason, and
// execution failures are in Output.
func (r *Runtime) Run(ctx context.Context, dialect, src string) Result {
	res := r.Admit(dialect, src)
	if !res.Accepted {
		return res
	}
	dl, _ := r.Dialect(res.Dialect)
	res.Started = time.Now()
	res.Output = r.Exec(ctx, dl, src)
	res.Duration = time.Since(res.Started)
	r.log.Debug("script finished",
		zap.String("run", res.ID.String()),
		zap.String("dialect", res.Dialect),
		zap.Duration("took", res.Duration),
		zap.Bool("failed", res.Failed()),
	)
	return res
}

// Exec runs src without the admission check.
func (r *Runtime) Exec(ctx context.Context, dl Dialect, src string) (out string) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("interpreter panic recovered", zap.String("dialect", dl.Name()), zap.Any("panic", rec))
			out += fmt.Sprintf("Error: internal interpreter failure: %v", rec)
		}
	}()
	return dl.Run(ctx, src, entity.NewSet(r.d))
}

func containsError(out string) bool {
	return strings.HasPrefix(out, "Error: ") || strings.Contains(out, "\nError: ")
}
