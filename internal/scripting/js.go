package scripting

import (
	"context"
	"sort"

	"github.com/dop251/goja"
	"github.com/jiecolao/pyquest-game/internal/entity"
	"github.com/jiecolao/pyquest-game/internal/watch"
)

// JS runs scripts on a fresh goja runtime per run.
type JS struct{}

func NewJS() *JS { return &JS{} }

func (j *JS) Name() string { return "js" }

func (j *JS) Admit(src string) error { return jsImports.check(j.Name(), src) }

func (j *JS) Run(ctx context.Context, src string, ents *entity.Set) string {
	var t transcript
	vm := goja.New()

	printFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			parts = append(parts, a.String())
		}
		t.line(" ", parts...)
		return goja.Undefined()
	}
	console := vm.NewObject()
	if err := console.Set("log", printFn); err != nil {
		return t.fail(err)
	}
	if err := vm.Set("console", console); err != nil {
		return t.fail(err)
	}
	if err := vm.Set("print", printFn); err != nil {
		return t.fail(err)
	}
	for _, e := range ents.All() {
		if err := vm.Set(e.Name(), vm.NewDynamicObject(&jsEntity{e: e})); err != nil {
			return t.fail(err)
		}
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	if _, err := vm.RunString(src); err != nil {
		if cerr := ctxErr(ctx); cerr != nil {
			return t.fail(cerr)
		}
		return t.fail(err)
	}
	return t.String()
}

// jsEntity is the goja dynamic object behind Player, Game and Enemy.
type jsEntity struct {
	e *entity.Entity
}

func (o *jsEntity) Get(key string) goja.Value {
	a, ok := o.e.Get(key)
	if !ok {
		return nil
	}
	v, _ := a.Raw.(goja.Value)
	return v
}

func (o *jsEntity) Set(key string, val goja.Value) bool {
	o.e.Set(key, val, fromJS(val))
	return true
}

func (o *jsEntity) Has(key string) bool {
	_, ok := o.e.Get(key)
	return ok
}

// Delete refuses: tracked attributes cannot be removed from a script.
func (o *jsEntity) Delete(string) bool { return false }

func (o *jsEntity) Keys() []string {
	keys := o.e.Attrs()
	sort.Strings(keys)
	return keys
}

// fromJS unwraps goja values to the tracked variant.
func fromJS(v goja.Value) watch.Value {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return watch.Null()
	}
	switch x := v.Export().(type) {
	case int64:
		return watch.Int(x)
	case float64:
		return watch.Number(x)
	case string:
		return watch.String(x)
	case bool:
		return watch.Bool(x)
	default:
		return watch.Opaque(x, v.String())
	}
}
