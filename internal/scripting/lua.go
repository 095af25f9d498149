package scripting

import (
	"context"

	"github.com/jiecolao/pyquest-game/internal/entity"
	"github.com/jiecolao/pyquest-game/internal/watch"
	lua "github.com/yuin/gopher-lua"
)

const luaEntityType = "entity"

// Lua runs scripts on a fresh gopher-lua state per run. Only the base,
// table, string and math libraries are opened.
type Lua struct{}

func NewLua() *Lua { return &Lua{} }

func (l *Lua) Name() string { return "lua" }

func (l *Lua) Admit(src string) error { return luaImports.check(l.Name(), src) }

func (l *Lua) Run(ctx context.Context, src string, ents *entity.Set) string {
	var t transcript
	vm := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer vm.Close()

	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		vm.Push(vm.NewFunction(lib.fn))
		vm.Push(lua.LString(lib.name))
		vm.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		vm.SetGlobal(name, lua.LNil)
	}
	vm.SetGlobal("print", vm.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		parts := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		t.line("\t", parts...)
		return 0
	}))

	mt := vm.NewTypeMetatable(luaEntityType)
	vm.SetField(mt, "__index", vm.NewFunction(luaEntityIndex))
	vm.SetField(mt, "__newindex", vm.NewFunction(luaEntityNewIndex))
	vm.SetField(mt, "__tostring", vm.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(checkLuaEntity(L).Name()))
		return 1
	}))
	for _, e := range ents.All() {
		ud := vm.NewUserData()
		ud.Value = e
		vm.SetMetatable(ud, mt)
		vm.SetGlobal(e.Name(), ud)
	}

	vm.SetContext(ctx)
	if err := vm.DoString(src); err != nil {
		if cerr := ctxErr(ctx); cerr != nil {
			return t.fail(cerr)
		}
		return t.fail(err)
	}
	return t.String()
}

func checkLuaEntity(L *lua.LState) *entity.Entity {
	ud := L.CheckUserData(1)
	e, ok := ud.Value.(*entity.Entity)
	if !ok {
		L.ArgError(1, "entity expected")
	}
	return e
}

// luaEntityIndex returns the last assigned value, or nil like a plain table.
func luaEntityIndex(L *lua.LState) int {
	e := checkLuaEntity(L)
	a, ok := e.Get(L.CheckString(2))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	v, ok := a.Raw.(lua.LValue)
	if !ok {
		v = lua.LNil
	}
	L.Push(v)
	return 1
}

func luaEntityNewIndex(L *lua.LState) int {
	e := checkLuaEntity(L)
	key := L.CheckString(2)
	v := L.Get(3)
	e.Set(key, v, fromLua(v))
	return 0
}

// fromLua unwraps Lua values to the tracked variant.
func fromLua(v lua.LValue) watch.Value {
	switch x := v.(type) {
	case *lua.LNilType:
		return watch.Null()
	case lua.LBool:
		return watch.Bool(bool(x))
	case lua.LNumber:
		return watch.Number(float64(x))
	case lua.LString:
		return watch.String(string(x))
	default:
		return watch.Opaque(v, v.String())
	}
}
