package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/xvm/internal/errors"
	"github.com/vango-dev/xvm/pkg/reactive"
	"github.com/vango-dev/xvm/pkg/template"
)

type testScope struct {
	vars    map[string]any
	emitted []string
}

func newScope(vars map[string]any) *testScope {
	return &testScope{vars: vars}
}

func (s *testScope) Get(name string) any { return s.vars[name] }
func (s *testScope) Has(name string) bool {
	_, ok := s.vars[name]
	return ok
}
func (s *testScope) Set(name string, v any) error {
	s.vars[name] = v
	return nil
}
func (s *testScope) Call(name string, args ...any) (any, error) {
	fn, _ := s.vars[name].(template.Func)
	if fn == nil {
		return nil, errors.New("E106").WithInfo(name)
	}
	return fn(args...)
}
func (s *testScope) Emit(name string, detail any) {
	s.emitted = append(s.emitted, name)
}

func eval(t *testing.T, src string, s template.Scope) any {
	t.Helper()
	e, err := New().CompileExpr(src)
	require.NoError(t, err)
	v, err := e(s)
	require.NoError(t, err)
	return v
}

func TestCompileExpr(t *testing.T) {
	s := newScope(map[string]any{
		"count": 2,
		"name":  "ada",
		"price": 1.5,
		"items": reactive.NewList("a", "b", "c"),
		"user":  reactive.NewRecord(map[string]any{"age": 36}),
	})

	t.Run("arithmetic", func(t *testing.T) {
		assert.Equal(t, 3, eval(t, "count + 1", s))
	})
	t.Run("strings", func(t *testing.T) {
		assert.Equal(t, "hi ada", eval(t, `"hi " + name`, s))
	})
	t.Run("comparison", func(t *testing.T) {
		assert.Equal(t, true, eval(t, "count > 1", s))
	})
	t.Run("floats", func(t *testing.T) {
		assert.Equal(t, 3.0, eval(t, "price * 2", s))
	})
	t.Run("list length", func(t *testing.T) {
		assert.Equal(t, 3, eval(t, "len(items)", s))
	})
	t.Run("record field", func(t *testing.T) {
		assert.Equal(t, 36, eval(t, `user["age"]`, s))
	})
	t.Run("missing name is nil", func(t *testing.T) {
		assert.Equal(t, true, eval(t, "missing == nil", s))
	})
}

func TestDollarNames(t *testing.T) {
	s := newScope(map[string]any{"$item": "x", "$idx": 4})
	assert.Equal(t, "x4", eval(t, `$item + string($idx)`, s))
	assert.Equal(t, "$item", eval(t, `"$item"`, s))
}

func TestExprTracksReads(t *testing.T) {
	rec := reactive.NewRecord(map[string]any{"a": 1, "b": 2})
	scope := &recordScope{rec: rec}

	e, err := New().CompileExpr("a + b")
	require.NoError(t, err)

	var got []any
	w := reactive.NewWatcher(func() (any, error) { return e(scope) }, reactive.WatcherOptions{
		Sync:     true,
		Callback: func(v, _ any) { got = append(got, v) },
	})
	defer w.Close()

	assert.Equal(t, 3, w.Value())
	rec.Set("b", 5)
	assert.Equal(t, []any{6}, got)
}

// watch evaluates src in a sync watcher over rec and counts reruns.
func watch(t *testing.T, src string, rec *reactive.Record) (*reactive.Watcher, *int) {
	t.Helper()
	e, err := New().CompileExpr(src)
	require.NoError(t, err)
	runs := 0
	w := reactive.NewWatcher(func() (any, error) {
		runs++
		return e(&recordScope{rec: rec})
	}, reactive.WatcherOptions{Sync: true})
	t.Cleanup(w.Close)
	return w, &runs
}

func TestExprSkipsUntakenBranch(t *testing.T) {
	rec := reactive.NewRecord(map[string]any{"flag": true, "a": 1, "b": 2})
	w, runs := watch(t, "flag ? a : b", rec)
	assert.Equal(t, 1, w.Value())
	assert.Len(t, w.Deps(), 2, "flag and a")

	rec.Set("b", 5)
	assert.Equal(t, 1, *runs, "b is not read while flag holds")

	rec.Set("flag", false)
	assert.Equal(t, 5, w.Value())
	assert.Equal(t, 2, *runs)

	rec.Set("a", 9)
	assert.Equal(t, 2, *runs, "a is dropped once the branch flips")
}

func TestExprReadsOnlyAccessedKeys(t *testing.T) {
	rec := reactive.NewRecord(map[string]any{
		"user": map[string]any{"name": "ada", "age": 36},
	})
	w, runs := watch(t, "user.name", rec)
	assert.Equal(t, "ada", w.Value())
	assert.Len(t, w.Deps(), 3, "the user key, the user object and user.name")

	user := rec.Peek("user").(*reactive.Record)
	user.Set("age", 37)
	assert.Equal(t, 1, *runs)

	user.Set("name", "grace")
	assert.Equal(t, "grace", w.Value())
	assert.Equal(t, 2, *runs)
}

func TestExprIndexReadsOneItem(t *testing.T) {
	rec := reactive.NewRecord(map[string]any{
		"items": []any{map[string]any{"n": 1}, map[string]any{"n": 2}},
	})
	w, runs := watch(t, `items[1]["n"]`, rec)
	assert.Equal(t, 2, w.Value())

	items := rec.Peek("items").(*reactive.List)
	items.Peek()[0].(*reactive.Record).Set("n", 10)
	assert.Equal(t, 1, *runs)

	items.Push(map[string]any{"n": 3})
	assert.Equal(t, 2, *runs, "structural changes rerun index reads")
	assert.Equal(t, 2, w.Value())
}

func TestExprKeepsReactiveValues(t *testing.T) {
	user := reactive.NewRecord(map[string]any{"name": "ada"})
	items := reactive.NewList(1, 2)
	s := newScope(map[string]any{"user": user, "items": items})

	assert.Same(t, user, eval(t, "user", s))
	assert.Same(t, items, eval(t, "items", s))
	assert.Equal(t, true, eval(t, "user == user", s))
	assert.Equal(t, 2, eval(t, "len(items)", s))
}

func TestHandlerWritesThroughProxies(t *testing.T) {
	user := reactive.NewRecord(map[string]any{"name": "ada"})
	items := reactive.NewList(1)
	s := newScope(map[string]any{"user": user, "items": items})

	h, err := New().CompileHandler(`
		user.name = "grace"
		user["age"] = 36
		items.append(2)
		items[0] = 5
	`)
	require.NoError(t, err)
	_, err = h(s, template.Event{})
	require.NoError(t, err)

	assert.Equal(t, "grace", user.Peek("name"))
	assert.Equal(t, 36, user.Peek("age"))
	assert.Equal(t, []any{5, 2}, items.Peek())
}

func TestCompiledOnce(t *testing.T) {
	e, err := New().CompileExpr("n * 2")
	require.NoError(t, err)
	for n := range 3 {
		v, err := e(newScope(map[string]any{"n": n}))
		require.NoError(t, err)
		assert.Equal(t, n*2, v)
	}
}

type recordScope struct {
	rec *reactive.Record
}

func (s *recordScope) Get(name string) any              { return s.rec.Get(name) }
func (s *recordScope) Has(name string) bool             { return s.rec.Has(name) }
func (s *recordScope) Set(name string, v any) error     { s.rec.Set(name, v); return nil }
func (s *recordScope) Call(string, ...any) (any, error) { return nil, nil }
func (s *recordScope) Emit(string, any)                 {}

func TestCompileHandler(t *testing.T) {
	var added []any
	s := newScope(map[string]any{
		"count": 1,
		"add": template.Func(func(args ...any) (any, error) {
			added = append(added, args...)
			return len(added), nil
		}),
	})

	h, err := New().CompileHandler(`
		assign("count", count + event["detail"])
		emit("changed", count)
		add(args[0], "y")
	`)
	require.NoError(t, err)

	out, err := h(s, template.Event{Type: "tap", Detail: []any{"x"}})
	require.Error(t, err, "adding a list to an int fails")
	assert.Equal(t, "E120", errors.CodeOf(err))
	assert.Nil(t, out)

	h, err = New().CompileHandler(`
		assign("count", count + event["detail"])
		emit("changed", count)
		add(event["type"], "y")
	`)
	require.NoError(t, err)
	out, err = h(s, template.Event{Type: "tap", Detail: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, out)
	assert.Equal(t, 3, s.vars["count"])
	assert.Equal(t, []string{"changed"}, s.emitted)
	assert.Equal(t, []any{"tap", "y"}, added)
}

func TestHandlerLocals(t *testing.T) {
	s := newScope(map[string]any{"items": []any{1, 2, 3}})
	h, err := New().CompileHandler(`
		total := 0
		for i, v := range items {
			total += v
		}
		assign("total", total)
	`)
	require.NoError(t, err)
	_, err = h(s, template.Event{})
	require.NoError(t, err)
	assert.Equal(t, 6, s.vars["total"])
}

func TestCompileErrors(t *testing.T) {
	_, err := New().CompileExpr("1 +")
	require.Error(t, err)
	assert.Equal(t, "E123", errors.CodeOf(err))
}

func TestGlobals(t *testing.T) {
	sb := New(WithGlobals(map[string]any{"unit": "px", "name": "global"}))
	e, err := sb.CompileExpr("name + unit")
	require.NoError(t, err)

	v, err := e(newScope(map[string]any{"name": "4"}))
	require.NoError(t, err)
	assert.Equal(t, "4px", v)
}

func TestInterpolate(t *testing.T) {
	v, err := New().Interpolate("{{ count * 2 }} items")
	require.NoError(t, err)
	out, err := template.Eval(v, newScope(map[string]any{"count": 4}))
	require.NoError(t, err)
	assert.Equal(t, "8 items", out)
}

func TestBindNames(t *testing.T) {
	tests := []struct {
		src   string
		want  string
		eager []string
	}{
		{"a + b", `__scope__("a") + __scope__("b")`, []string{}},
		{"user.name", `__scope__("user").name`, []string{}},
		{`"a" + b`, `"a" + __scope__("b")`, []string{}},
		{"len(items)", `len(__scope__("items"))`, []string{}},
		{"x := 1\nx + y", "x := 1\nx + __scope__(\"y\")", []string{}},
		{"{a: b}", `{a: __scope__("b")}`, []string{}},
		{"f ? a : b", `__scope__("f") ? __scope__("a") : __scope__("b")`, []string{}},
		{"xs[a:b]", `__scope__("xs")[__scope__("a"):__scope__("b")]`, []string{}},
		{"__item", `__scope__("$item")`, []string{}},
		{"count = 2", "count = 2", []string{"count"}},
		{"'n={n}'", "'n={n}'", []string{"n"}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			b, err := bindNames(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.src)
			assert.Equal(t, tt.eager, b.eager)
		})
	}
}

func TestFreeNames(t *testing.T) {
	tests := []struct {
		src  string
		want []string
	}{
		{"a + b", []string{"a", "b"}},
		{"user.name", []string{"user"}},
		{`"a" + b`, []string{"b"}},
		{"len(items)", []string{"items"}},
		{"x := 1\nx + y", []string{"y"}},
		{"func(a) { return a + b }", []string{"b"}},
		{"__item", []string{"__item"}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			assert.Equal(t, tt.want, freeNames(tt.src))
		})
	}
}
