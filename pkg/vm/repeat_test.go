package vm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/xvm/pkg/dom"
	"github.com/vango-dev/xvm/pkg/reactive"
	"github.com/vango-dev/xvm/pkg/template"
)

func item(id int) map[string]any {
	return map[string]any{"id": id}
}

// keyedList renders one text per item of list, keyed by id.
func keyedList(items ...any) *Definition {
	return &Definition{
		Data: map[string]any{"list": items},
		Template: div(&template.Node{
			Type:   "text",
			Repeat: &template.Repeat{Exp: template.Path("list"), TrackBy: "id"},
			Attr:   map[string]any{"value": template.Path("$item.id")},
		}),
	}
}

func (h *harness) list() *reactive.List {
	return h.root().Get("list").(*reactive.List)
}

func TestRepeatReorderOnlyMoves(t *testing.T) {
	h := run(t, keyedList(item(1), item(2), item(3)))
	host := h.root().Element("")
	before := hostElements(host)
	require.Len(t, before, 3)
	watchers := make([][]dom.Closer, len(before))
	for i, n := range before {
		watchers[i] = n.Watchers()
		require.NotEmpty(t, watchers[i])
	}

	items := h.list().Peek()
	h.list().Replace(items[2], items[0], items[1])
	cmds := h.flush()

	want := []dom.Command{
		{Op: dom.OpMoveChild, Parent: host.Ref(), Ref: before[2].Ref(), Index: 0},
		{Op: dom.OpUpdateFinish},
	}
	if diff := cmp.Diff(want, cmds); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	after := hostElements(host)
	assert.Equal(t, []*dom.Node{before[2], before[0], before[1]}, after, "nodes are reused")
	assert.Equal(t, []any{3, 1, 2}, values(host))

	for i, n := range before {
		got := n.Watchers()
		require.Len(t, got, len(watchers[i]), "node %d", i)
		for j, w := range got {
			rw, ok := w.(*reactive.Watcher)
			require.True(t, ok, "node %d watcher %d is %T", i, j, w)
			assert.Same(t, watchers[i][j], rw, "node %d watcher %d", i, j)
			assert.False(t, rw.Closed(), "node %d watcher %d", i, j)
		}
	}
}

func TestRepeatRotationIsOneMove(t *testing.T) {
	h := run(t, keyedList(item(1), item(2), item(3), item(4)))
	host := h.root().Element("")
	before := hostElements(host)

	items := h.list().Peek()
	h.list().Replace(items[1], items[2], items[3], items[0])
	cmds := h.flush()

	want := []dom.Command{
		{Op: dom.OpMoveChild, Parent: host.Ref(), Ref: before[0].Ref(), Index: 3},
		{Op: dom.OpUpdateFinish},
	}
	if diff := cmp.Diff(want, cmds); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []any{2, 3, 4, 1}, values(host))
}

func TestRepeatRemoveOne(t *testing.T) {
	h := run(t, keyedList(item(1), item(2), item(3)))
	host := h.root().Element("")
	before := hostElements(host)

	h.list().RemoveAt(1)
	cmds := h.flush()

	want := []dom.Command{
		{Op: dom.OpRemoveChild, Ref: before[1].Ref()},
		{Op: dom.OpUpdateFinish},
	}
	if diff := cmp.Diff(want, cmds); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []*dom.Node{before[0], before[2]}, hostElements(host))
}

func TestRepeatInsert(t *testing.T) {
	h := run(t, keyedList(item(1), item(3)))
	host := h.root().Element("")

	h.list().InsertAt(1, item(2))
	cmds := h.flush()

	require.Len(t, cmds, 3)
	assert.Equal(t, dom.OpCreate, cmds[0].Op)
	assert.Equal(t, dom.Command{Op: dom.OpAddChild, Parent: host.Ref(), Ref: cmds[0].Ref, Index: 1}, cmds[1])
	assert.Equal(t, []any{1, 2, 3}, values(host))
}

func TestRepeatClearAndRefill(t *testing.T) {
	h := run(t, keyedList(item(1), item(2)))
	host := h.root().Element("")

	h.list().Replace()
	h.flush()
	assert.Empty(t, hostElements(host))

	h.list().Push(item(5), item(6))
	h.flush()
	assert.Equal(t, []any{5, 6}, values(host))
}

func TestRepeatUpdatesReusedItems(t *testing.T) {
	h := run(t, &Definition{
		Data: map[string]any{"list": []any{"a", "b"}},
		Template: div(&template.Node{
			Type:   "text",
			Repeat: &template.Repeat{Exp: template.Path("list"), Key: "i", Value: "v"},
			Attr: map[string]any{"value": template.Expr(func(s template.Scope) (any, error) {
				return template.String(s.Get("i")) + ":" + template.String(s.Get("v")), nil
			})},
		}),
	})
	host := h.root().Element("")
	before := hostElements(host)

	h.list().SetAt(1, "c")
	cmds := h.flush()

	want := []dom.Command{
		{Op: dom.OpUpdateAttr, Ref: before[1].Ref(), Key: "value", Value: "1:c"},
		{Op: dom.OpUpdateFinish},
	}
	if diff := cmp.Diff(want, cmds); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestRepeatDuplicateKeys(t *testing.T) {
	h := run(t, keyedList(item(1), item(2)))
	host := h.root().Element("")
	before := hostElements(host)

	items := h.list().Peek()
	h.list().Replace(items[1], items[0], reactive.Wrap(item(1)))
	h.flush()

	after := hostElements(host)
	require.Len(t, after, 3, "every occurrence renders")
	assert.Equal(t, []any{2, 1, 1}, values(host))
	assert.Same(t, before[1], after[0])
	assert.Same(t, before[0], after[2], "the last occurrence keeps the node")
	assert.Contains(t, h.logs.String(), "E103")
}

func TestRepeatSkipsEmptyKeys(t *testing.T) {
	h := run(t, keyedList(item(1), map[string]any{"name": "no id"}, item(3)))
	assert.Equal(t, []any{1, 3}, values(h.root().Element("")))
	assert.Contains(t, h.logs.String(), "E102")
}

func TestRepeatCount(t *testing.T) {
	h := run(t, &Definition{
		Data: map[string]any{"n": 3},
		Template: div(&template.Node{
			Type:   "text",
			Repeat: &template.Repeat{Exp: template.Path("n")},
			Attr:   map[string]any{"value": template.Path("$item")},
		}),
	})
	assert.Equal(t, []any{1, 2, 3}, values(h.root().Element("")))

	require.NoError(t, h.root().Set("n", 1))
	h.flush()
	assert.Equal(t, []any{1}, values(h.root().Element("")))
}

func TestRepeatRecordSource(t *testing.T) {
	h := run(t, &Definition{
		Data: map[string]any{"obj": map[string]any{"a": 1}},
		Template: div(&template.Node{
			Type:   "text",
			Repeat: &template.Repeat{Exp: template.Path("obj")},
			Attr:   map[string]any{"value": "x"},
		}),
	})
	assert.Empty(t, hostElements(h.root().Element("")))
	assert.Contains(t, h.logs.String(), "E104")
}

func TestRepeatWithCondition(t *testing.T) {
	h := run(t, &Definition{
		Data: map[string]any{"list": []any{1, 2, 3, 4}},
		Template: div(&template.Node{
			Type:   "text",
			Repeat: &template.Repeat{Exp: template.Path("list")},
			Shown: template.Expr(func(s template.Scope) (any, error) {
				return s.Get("$item").(int)%2 == 0, nil
			}),
			Attr: map[string]any{"value": template.Path("$item")},
		}),
	})
	assert.Equal(t, []any{2, 4}, values(h.root().Element("")))
}

func TestRepeatDisposesComponents(t *testing.T) {
	app, logs := newTestApp()
	destroyed := 0
	app.Define("row", &Definition{
		Props: map[string]PropSpec{"num": {Type: "Number"}},
		Methods: map[string]template.Handler{
			OnDestroy: handler(func(template.Scope, template.Event) (any, error) {
				destroyed++
				return nil, nil
			}),
		},
		Template: text(template.Path("num")),
	})
	app.Define("main", &Definition{
		Data: map[string]any{"list": []any{item(1), item(2)}},
		Template: div(&template.Node{
			Type:   "row",
			Repeat: &template.Repeat{Exp: template.Path("list"), TrackBy: "id"},
			Attr:   map[string]any{"num": template.Path("$item.id")},
		}),
	})
	h := boot(t, app, logs, "main", BootstrapOptions{})
	require.Len(t, h.root().Children(), 2)

	h.list().RemoveAt(0)
	h.flush()
	assert.Equal(t, 1, destroyed)
	require.Len(t, h.root().Children(), 1)
	assert.Equal(t, 2, h.root().Children()[0].Props().Get("num"))
	assert.Equal(t, []any{2}, values(h.root().Element("")))
}

func TestIncreasingRun(t *testing.T) {
	tests := []struct {
		seq  []int
		want []bool
	}{
		{[]int{2, 0, 1}, []bool{false, true, true}},
		{[]int{1, 2, 3, 0}, []bool{true, true, true, false}},
		{[]int{-1, 0, -1, 1}, []bool{false, true, false, true}},
		{nil, []bool{}},
	}
	for _, tt := range tests {
		got := increasingRun(tt.seq)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("increasingRun(%v) mismatch (-want +got):\n%s", tt.seq, diff)
		}
	}
}
