package scripting

import (
	"encoding/json"

	"github.com/whalecs/ecsrt/internal/core/ecs"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// openECS installs the global ecs table.
func (e *Engine) openECS() {
	mod := e.vm.SetFuncs(e.vm.NewTable(), map[string]lua.LGFunction{
		"create_entity":    e.luaCreateEntity,
		"destroy_entity":   e.luaDestroyEntity,
		"mark_destroy":     e.luaMarkDestroy,
		"is_alive":         e.luaIsAlive,
		"add_component":    e.luaAddComponent,
		"get_component":    e.luaGetComponent,
		"remove_component": e.luaRemoveComponent,
		"has_component":    e.luaHasComponent,
		"query":            e.luaQuery,
		"query_all":        e.luaQueryAll,
		"mark_dirty":       e.luaMarkDirty,
		"dirty":            e.luaDirty,
		"emit":             e.luaEmit,
		"log":              e.luaLog,
	})
	e.vm.SetGlobal("ecs", mod)
}

func (e *Engine) bound(L *lua.LState) *ecs.World {
	if e.world == nil {
		L.RaiseError("ecs: no world bound")
	}
	return e.world
}

func checkEntity(L *lua.LState, n int) ecs.EntityID {
	v := L.CheckNumber(n)
	if v < 0 {
		L.ArgError(n, "negative entity id")
	}
	return ecs.EntityID(uint64(v))
}

func idList(L *lua.LState, ids []ecs.EntityID) *lua.LTable {
	t := L.CreateTable(len(ids), 0)
	for _, id := range ids {
		t.Append(lua.LNumber(id))
	}
	return t
}

func (e *Engine) luaCreateEntity(L *lua.LState) int {
	L.Push(lua.LNumber(e.bound(L).CreateEntity()))
	return 1
}

func (e *Engine) luaDestroyEntity(L *lua.LState) int {
	w := e.bound(L)
	id := checkEntity(L, 1)
	alive := w.IsAlive(id)
	w.DestroyEntity(id)
	L.Push(lua.LBool(alive))
	return 1
}

func (e *Engine) luaMarkDestroy(L *lua.LState) int {
	e.bound(L).MarkForDestruction(checkEntity(L, 1))
	return 0
}

func (e *Engine) luaIsAlive(L *lua.LState) int {
	L.Push(lua.LBool(e.bound(L).IsAlive(checkEntity(L, 1))))
	return 1
}

// add_component(id, type, fields) stores fields as a component of type.
func (e *Engine) luaAddComponent(L *lua.LState) int {
	w := e.bound(L)
	id := checkEntity(L, 1)
	typ := L.CheckString(2)
	fields, _ := fromLua(L.OptTable(3, L.NewTable())).(map[string]any)
	if fields == nil {
		fields = map[string]any{}
	}

	var c ecs.Component = ecs.Dynamic{Kind: typ, Fields: fields}
	if e.registry != nil {
		data, err := json.Marshal(fields)
		if err != nil {
			L.RaiseError("add_component %s: %v", typ, err)
		}
		decoded, _, err := e.registry.Decode(typ, data)
		if err != nil {
			L.RaiseError("add_component %s: %v", typ, err)
		}
		c = decoded
	}
	if err := w.AddComponent(id, c); err != nil {
		L.RaiseError("add_component: %v", err)
	}
	return 0
}

func (e *Engine) luaGetComponent(L *lua.LState) int {
	w := e.bound(L)
	c, ok := w.GetComponent(checkEntity(L, 1), L.CheckString(2))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	v, err := componentValue(c)
	if err != nil {
		L.RaiseError("get_component: %v", err)
	}
	L.Push(toLua(L, v))
	return 1
}

func (e *Engine) luaRemoveComponent(L *lua.LState) int {
	L.Push(lua.LBool(e.bound(L).RemoveComponent(checkEntity(L, 1), L.CheckString(2))))
	return 1
}

func (e *Engine) luaHasComponent(L *lua.LState) int {
	L.Push(lua.LBool(e.bound(L).HasComponent(checkEntity(L, 1), L.CheckString(2))))
	return 1
}

func (e *Engine) luaQuery(L *lua.LState) int {
	L.Push(idList(L, e.bound(L).Query(L.CheckString(1)).Entities()))
	return 1
}

// query_all(type, ...) returns entities holding every listed type.
func (e *Engine) luaQueryAll(L *lua.LState) int {
	w := e.bound(L)
	types := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		types = append(types, L.CheckString(i))
	}
	L.Push(idList(L, w.QueryMultiple(types...)))
	return 1
}

func (e *Engine) luaMarkDirty(L *lua.LState) int {
	L.Push(lua.LBool(e.bound(L).MarkComponentDirty(checkEntity(L, 1), L.CheckString(2))))
	return 1
}

func (e *Engine) luaDirty(L *lua.LState) int {
	L.Push(idList(L, e.bound(L).DirtyEntities(L.CheckString(1))))
	return 1
}

func (e *Engine) luaEmit(L *lua.LState) int {
	e.bound(L).EmitEvent(L.CheckString(1), fromLua(L.Get(2)))
	return 0
}

func (e *Engine) luaLog(L *lua.LState) int {
	e.log.Info("lua", zap.String("msg", L.CheckString(1)))
	return 0
}

// componentValue renders c as plain JSON-shaped Go values.
func componentValue(c ecs.Component) (any, error) {
	if d, ok := c.(ecs.Dynamic); ok {
		if d.Fields == nil {
			return d.Value, nil
		}
		return d.Fields, nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// fromLua converts a Lua value to JSON-shaped Go values. Tables with only
// keys 1..n become slices; other tables become maps keyed by the key's
// string form. Functions and userdata become nil.
func fromLua(v lua.LValue) any {
	switch v := v.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		n := v.MaxN()
		count := 0
		v.ForEach(func(lua.LValue, lua.LValue) { count++ })
		if n > 0 && count == n {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, fromLua(v.RawGetInt(i)))
			}
			return out
		}
		out := make(map[string]any, count)
		v.ForEach(func(k, val lua.LValue) {
			out[k.String()] = fromLua(val)
		})
		return out
	}
	return nil
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch v := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case float64:
		return lua.LNumber(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case uint64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case []any:
		t := L.CreateTable(len(v), 0)
		for _, item := range v {
			t.Append(toLua(L, item))
		}
		return t
	case map[string]any:
		t := L.CreateTable(0, len(v))
		for k, item := range v {
			t.RawSetString(k, toLua(L, item))
		}
		return t
	}
	return lua.LNil
}
