package reactive

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testOwner struct {
	errs    []error
	removed []*Watcher
}

func (o *testOwner) HandleError(err error)    { o.errs = append(o.errs, err) }
func (o *testOwner) RemoveWatcher(w *Watcher) { o.removed = append(o.removed, w) }

type queue struct{ pending []*Watcher }

func (q *queue) Schedule(w *Watcher) {
	for _, p := range q.pending {
		if p == w {
			return
		}
	}
	q.pending = append(q.pending, w)
}

func (q *queue) flush() {
	for len(q.pending) > 0 {
		w := q.pending[0]
		q.pending = q.pending[1:]
		w.Run()
	}
}

func TestDep(t *testing.T) {
	t.Run("subscribe deduplicates by id", func(t *testing.T) {
		d := NewDep()
		w := NewWatcher(func() (any, error) { return nil, nil }, WatcherOptions{Lazy: true})
		d.Subscribe(w)
		d.Subscribe(w)
		assert.Equal(t, 1, d.Len())

		d.Unsubscribe(w)
		d.Unsubscribe(w)
		assert.Equal(t, 0, d.Len())
	})

	t.Run("ids are monotonic", func(t *testing.T) {
		a, b := NewDep(), NewDep()
		assert.Less(t, a.ID(), b.ID())
	})

	t.Run("notify uses a snapshot", func(t *testing.T) {
		d := NewDep()
		var calls []string
		var late *Watcher
		first := NewWatcher(func() (any, error) {
			d.Depend()
			return nil, nil
		}, WatcherOptions{Sync: true, Deep: true, Callback: func(any, any) {
			calls = append(calls, "first")
			if late == nil {
				late = NewWatcher(func() (any, error) {
					d.Depend()
					return nil, nil
				}, WatcherOptions{Sync: true, Deep: true, Callback: func(any, any) {
					calls = append(calls, "late")
				}})
			}
		}})
		defer first.Close()

		d.Notify()
		assert.Equal(t, []string{"first"}, calls)

		d.Notify()
		assert.Equal(t, []string{"first", "first", "late"}, calls)
	})
}

func TestCell(t *testing.T) {
	t.Run("read and write", func(t *testing.T) {
		c := NewCell(1)
		assert.Equal(t, 1, c.Get())
		c.Set(2)
		assert.Equal(t, 2, c.Peek())
		c.Update(func(v int) int { return v + 3 })
		assert.Equal(t, 5, c.Get())
	})

	t.Run("same value does not notify", func(t *testing.T) {
		c := NewCell(math.NaN())
		runs := 0
		w := NewWatcher(func() (any, error) {
			runs++
			return c.Get(), nil
		}, WatcherOptions{Sync: true})
		defer w.Close()

		c.Set(math.NaN())
		assert.Equal(t, 1, runs)
		c.Set(1.5)
		assert.Equal(t, 2, runs)
	})

	t.Run("interface cells wrap containers", func(t *testing.T) {
		c := NewCell[any](map[string]any{"a": 1})
		r, ok := c.Peek().(*Record)
		require.True(t, ok)
		assert.Equal(t, 1, r.Get("a"))
	})
}

func TestDependencyAccuracy(t *testing.T) {
	flag := NewCell(true)
	a := NewCell("a")
	b := NewCell("b")

	w := NewWatcher(func() (any, error) {
		if flag.Get() {
			return a.Get(), nil
		}
		return b.Get(), nil
	}, WatcherOptions{Sync: true})
	defer w.Close()

	assert.Equal(t, 1, a.Dep().Len())
	assert.Equal(t, 0, b.Dep().Len())
	assert.Len(t, w.Deps(), 2)

	flag.Set(false)
	assert.Equal(t, "b", w.Value())
	assert.Equal(t, 0, a.Dep().Len(), "stale branch must be unsubscribed")
	assert.Equal(t, 1, b.Dep().Len())
	assert.Len(t, w.Deps(), 2)
}

func TestWatcherCallback(t *testing.T) {
	t.Run("fires only on change for primitives", func(t *testing.T) {
		c := NewCell(1)
		var got [][2]any
		w := NewWatcher(func() (any, error) {
			return c.Get() % 2, nil
		}, WatcherOptions{Sync: true, Callback: func(v, old any) {
			got = append(got, [2]any{v, old})
		}})
		defer w.Close()

		c.Set(3)
		c.Set(4)
		assert.Equal(t, [][2]any{{0, 1}}, got)
	})

	t.Run("containers always count as changed", func(t *testing.T) {
		r := NewRecord(map[string]any{"n": 1})
		fired := 0
		w := NewWatcher(func() (any, error) {
			r.Get("n")
			return r, nil
		}, WatcherOptions{Sync: true, Callback: func(any, any) { fired++ }})
		defer w.Close()

		r.Set("n", 2)
		assert.Equal(t, 1, fired)
	})

	t.Run("callback panic is reported", func(t *testing.T) {
		owner := &testOwner{}
		c := NewCell(0)
		w := NewWatcher(func() (any, error) { return c.Get(), nil }, WatcherOptions{
			Sync:        true,
			Owner:       owner,
			Description: "cb",
			Callback:    func(any, any) { panic("bad callback") },
		})
		defer w.Close()

		c.Set(1)
		require.Len(t, owner.errs, 1)
		assert.Contains(t, owner.errs[0].Error(), "E140")
	})
}

func TestCoalescing(t *testing.T) {
	q := &queue{}
	c := NewCell(0)
	runs := 0
	w := NewWatcher(func() (any, error) {
		runs++
		return c.Get(), nil
	}, WatcherOptions{Scheduler: q})
	defer w.Close()

	for i := 1; i <= 10; i++ {
		c.Set(i)
	}
	assert.Len(t, q.pending, 1)
	q.flush()
	assert.Equal(t, 2, runs)
	assert.Equal(t, 10, w.Value())
}

func TestComputed(t *testing.T) {
	t.Run("caches between reads", func(t *testing.T) {
		c := NewCell(2)
		calls := 0
		double := NewWatcher(func() (any, error) {
			calls++
			return c.Get() * 2, nil
		}, WatcherOptions{Lazy: true})

		assert.Equal(t, 0, calls)
		assert.Equal(t, 4, double.Get())
		assert.Equal(t, 4, double.Get())
		assert.Equal(t, 1, calls)

		c.Set(5)
		assert.True(t, double.Dirty())
		assert.Equal(t, 10, double.Get())
		assert.Equal(t, 10, double.Get())
		assert.Equal(t, 2, calls)
	})

	t.Run("computed on computed", func(t *testing.T) {
		c := NewCell(1)
		plusOne := NewWatcher(func() (any, error) { return c.Get() + 1, nil }, WatcherOptions{Lazy: true})
		times10 := NewWatcher(func() (any, error) { return plusOne.Get().(int) * 10, nil }, WatcherOptions{Lazy: true})

		var seen []any
		w := NewWatcher(func() (any, error) { return times10.Get(), nil }, WatcherOptions{
			Sync:     true,
			Callback: func(v, _ any) { seen = append(seen, v) },
		})
		defer w.Close()

		assert.Equal(t, 20, w.Value())
		c.Set(2)
		assert.Equal(t, []any{30}, seen)
	})

	t.Run("error clears dirty", func(t *testing.T) {
		owner := &testOwner{}
		fail := NewCell(true)
		w := NewWatcher(func() (any, error) {
			if fail.Get() {
				return nil, errors.New("nope")
			}
			return "ok", nil
		}, WatcherOptions{Lazy: true, Owner: owner})

		assert.Nil(t, w.Get())
		assert.False(t, w.Dirty())
		assert.Len(t, owner.errs, 1)

		fail.Set(false)
		assert.Equal(t, "ok", w.Get())
	})
}

func TestClose(t *testing.T) {
	owner := &testOwner{}
	a, b := NewCell(1), NewCell(2)
	w := NewWatcher(func() (any, error) { return a.Get() + b.Get(), nil }, WatcherOptions{Owner: owner})

	w.Close()
	w.Close()

	assert.True(t, w.Closed())
	assert.Equal(t, 0, a.Dep().Len())
	assert.Equal(t, 0, b.Dep().Len())
	assert.Len(t, owner.removed, 1, "owner is told once")

	a.Set(10)
	assert.Equal(t, 3, w.Value(), "closed watchers never re-run")
	assert.NoError(t, w.Run())
	assert.Equal(t, 3, w.Value())
}

func TestWatcherStopsAfterRepeatedFailures(t *testing.T) {
	owner := &testOwner{}
	c := NewCell(0)
	w := NewWatcher(func() (any, error) {
		if c.Get() > 0 {
			panic("broken")
		}
		return 0, nil
	}, WatcherOptions{Sync: true, Owner: owner, Description: "expr"})
	defer w.Close()

	for i := 1; i <= MaxFailures+2; i++ {
		c.Set(i)
	}
	assert.True(t, w.Stopped())
	// MaxFailures evaluation errors plus one stop notice.
	assert.Len(t, owner.errs, MaxFailures+1)
}

func TestRecord(t *testing.T) {
	t.Run("per key tracking", func(t *testing.T) {
		r := NewRecord(map[string]any{"a": 1, "b": 2})
		runs := 0
		w := NewWatcher(func() (any, error) {
			runs++
			return r.Get("a"), nil
		}, WatcherOptions{Sync: true})
		defer w.Close()

		r.Set("b", 3)
		assert.Equal(t, 1, runs)
		r.Set("a", 5)
		assert.Equal(t, 2, runs)
		assert.Equal(t, []string{"a", "b"}, r.Keys())
	})

	t.Run("added key invalidates readers of the absent key", func(t *testing.T) {
		r := NewRecord(nil)
		w := NewWatcher(func() (any, error) { return r.Get("late"), nil }, WatcherOptions{Sync: true})
		defer w.Close()

		r.Set("late", "here")
		assert.Equal(t, "here", w.Value())
	})

	t.Run("key observers see additions", func(t *testing.T) {
		r := NewRecord(nil)
		k := &keyLog{}
		r.Observer().AddOwner(k)
		r.Observer().AddOwner(k)
		r.Set("x", 1)
		r.Set("x", 2)
		assert.Equal(t, []string{"x"}, k.keys)
	})

	t.Run("delete notifies object link", func(t *testing.T) {
		r := NewRecord(map[string]any{"a": 1})
		w := NewWatcher(func() (any, error) { return len(r.Keys()), nil }, WatcherOptions{Sync: true})
		defer w.Close()

		r.Delete("a")
		assert.Equal(t, 0, w.Value())
	})

	t.Run("frozen records reject new keys", func(t *testing.T) {
		r := NewRecord(map[string]any{"a": 1})
		r.Freeze()
		r.Set("b", 2)
		r.Set("a", 3)
		assert.False(t, r.Has("b"))
		assert.Equal(t, 3, r.Get("a"))
		_, ok := Observe(r)
		assert.False(t, ok)
	})

	t.Run("nested values are wrapped", func(t *testing.T) {
		r := NewRecord(map[string]any{"user": map[string]any{"name": "ada"}, "tags": []string{"x"}})
		_, isRecord := r.Get("user").(*Record)
		_, isList := r.Get("tags").(*List)
		assert.True(t, isRecord)
		assert.True(t, isList)
		assert.Equal(t, map[string]any{"user": map[string]any{"name": "ada"}, "tags": []any{"x"}}, r.ToMap())
	})
}

type keyLog struct{ keys []string }

func (k *keyLog) KeyAdded(key string) { k.keys = append(k.keys, key) }

func TestList(t *testing.T) {
	l := NewList(3, 1, 2)
	runs := 0
	w := NewWatcher(func() (any, error) {
		runs++
		return l.Len(), nil
	}, WatcherOptions{Sync: true, Deep: true})
	defer w.Close()

	assert.Equal(t, 4, l.Push(4))
	assert.Equal(t, 4, l.Pop())
	assert.Equal(t, 3, l.Shift())
	assert.Equal(t, 3, l.Unshift(0))
	l.InsertAt(1, 9)
	assert.Equal(t, 9, l.RemoveAt(1))
	l.Sort(func(a, b any) bool { return a.(int) < b.(int) })
	assert.Equal(t, []any{0, 1, 2}, l.Items())
	l.Reverse()
	assert.Equal(t, []any{2, 1, 0}, l.Items())
	assert.Equal(t, []any{1}, l.SpliceRange(-2, 1, "a", "b"))
	assert.Equal(t, []any{2, "a", "b", 0}, l.Items())
	assert.Equal(t, 10, runs)

	assert.Nil(t, l.RemoveAt(10))
	assert.Nil(t, l.SpliceRange(0, 0))
	assert.Equal(t, 10, runs, "no-op mutations do not notify")

	l.Push(map[string]any{"id": 1})
	_, ok := l.At(4).(*Record)
	assert.True(t, ok, "inserted values are observed")
}

type hostNode struct{}

func (hostNode) Opaque() {}

func TestObserve(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		r := NewRecord(map[string]any{"a": 1})
		ob1, ok1 := Observe(r)
		ob2, ok2 := Observe(r)
		assert.True(t, ok1 && ok2)
		assert.Same(t, ob1, ob2)
		assert.Same(t, r, Wrap(r))
	})

	t.Run("opaque values are never wrapped", func(t *testing.T) {
		_, ok := Observe(hostNode{})
		assert.False(t, ok)

		RegisterOpaque(func(v any) bool {
			_, ok := v.(map[string]int)
			return ok
		})
		assert.Equal(t, map[string]int{"a": 1}, Wrap(map[string]int{"a": 1}))
		_, ok = Observe(42)
		assert.False(t, ok)
	})
}

func TestSame(t *testing.T) {
	p := &struct{}{}
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"ints", 1, 1, true},
		{"int vs float", 1, 1.0, false},
		{"nan", math.NaN(), math.NaN(), true},
		{"strings", "a", "a", true},
		{"nil", nil, nil, true},
		{"nil vs value", nil, 0, false},
		{"same pointer", p, p, true},
		{"maps", map[string]any{}, map[string]any{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Same(tt.a, tt.b))
		})
	}
}

func TestTrackingIsGoroutineLocal(t *testing.T) {
	c := NewCell(0)
	other := NewCell(0)

	var wg sync.WaitGroup
	w := NewWatcher(func() (any, error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			other.Get()
		}()
		wg.Wait()
		return c.Get(), nil
	}, WatcherOptions{Sync: true})
	defer w.Close()

	assert.Equal(t, 1, c.Dep().Len())
	assert.Equal(t, 0, other.Dep().Len(), "reads on another goroutine are not attributed")
}

func TestUntracked(t *testing.T) {
	c := NewCell(0)
	w := NewWatcher(func() (any, error) {
		var v int
		assert.True(t, Tracking())
		Untracked(func() {
			v = c.Get()
			assert.False(t, Tracking())
		})
		return v, nil
	}, WatcherOptions{Sync: true})
	defer w.Close()

	assert.Equal(t, 0, c.Dep().Len())
}
