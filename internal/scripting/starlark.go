package scripting

import (
	"context"
	"fmt"
	"sort"

	"github.com/jiecolao/pyquest-game/internal/entity"
	"github.com/jiecolao/pyquest-game/internal/watch"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Python is the default dialect. It runs Starlark, the Python dialect
// embedded in Go, with top-level loops and while statements enabled.
type Python struct {
	maxSteps uint64
}

func NewPython(maxSteps uint64) *Python { return &Python{maxSteps: maxSteps} }

func (p *Python) Name() string { return "python" }

func (p *Python) Admit(src string) error { return pythonImports.check(p.Name(), src) }

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

func (p *Python) Run(ctx context.Context, src string, ents *entity.Set) string {
	var t transcript
	thread := &starlark.Thread{
		Name:  "script",
		Print: func(_ *starlark.Thread, msg string) { t.line("", msg) },
	}
	if p.maxSteps > 0 {
		thread.SetMaxExecutionSteps(p.maxSteps)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	predeclared := starlark.StringDict{}
	for _, e := range ents.All() {
		predeclared[e.Name()] = &starEntity{e: e}
	}

	if _, err := starlark.ExecFileOptions(fileOptions, thread, "<stdin>", src, predeclared); err != nil {
		if cerr := ctxErr(ctx); cerr != nil {
			return t.fail(cerr)
		}
		return t.fail(err)
	}
	return t.String()
}

// starEntity exposes an entity to Starlark. Attribute assignment goes
// through SetField.
type starEntity struct {
	e *entity.Entity
}

var _ starlark.HasSetField = (*starEntity)(nil)

func (s *starEntity) String() string { return s.e.Name() }
func (s *starEntity) Type() string { return "entity" }
func (s *starEntity) Freeze() {}
func (s *starEntity) Truth() starlark.Bool { return starlark.True }
func (s *starEntity) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: entity") }

func (s *starEntity) Attr(name string) (starlark.Value, error) {
	a, ok := s.e.Get(name)
	if !ok {
		return nil, nil // starlark reports "has no .name field or method"
	}
	if v, ok := a.Raw.(starlark.Value); ok {
		return v, nil
	}
	return starlark.None, nil
}

func (s *starEntity) AttrNames() []string {
	names := s.e.Attrs()
	sort.Strings(names)
	return names
}

func (s *starEntity) SetField(name string, val starlark.Value) error {
	s.e.Set(name, val, fromStarlark(val))
	return nil
}

// fromStarlark unwraps Starlark values to the tracked variant.
func fromStarlark(v starlark.Value) watch.Value {
	switch x := v.(type) {
	case starlark.NoneType:
		return watch.Null()
	case starlark.Bool:
		return watch.Bool(bool(x))
	case starlark.Int:
		if n, ok := x.Int64(); ok {
			return watch.Int(n)
		}
		return watch.Number(float64(x.Float()))
	case starlark.Float:
		return watch.Number(float64(x))
	case starlark.String:
		return watch.String(string(x))
	default:
		return watch.Opaque(v, v.String())
	}
}
