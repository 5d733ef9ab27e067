package vm

import (
	"fmt"

	"github.com/vango-dev/xvm/pkg/reactive"
	"github.com/vango-dev/xvm/pkg/template"
)

// itemScope layers the variables of one repeated item over the scope the
// repeat was compiled in.
type itemScope struct {
	parent template.Scope
	vars   *reactive.Record
}

func newItemScope(parent template.Scope, vars map[string]any) *itemScope {
	return &itemScope{parent: parent, vars: reactive.NewRecord(vars)}
}

func (s *itemScope) Get(name string) any {
	if v, ok := s.vars.Lookup(name); ok {
		return v
	}
	return s.parent.Get(name)
}

func (s *itemScope) Has(name string) bool {
	return s.vars.Has(name) || s.parent.Has(name)
}

func (s *itemScope) Set(name string, v any) error {
	if s.vars.Has(name) {
		s.vars.Set(name, v)
		return nil
	}
	return s.parent.Set(name, v)
}

func (s *itemScope) Call(name string, args ...any) (any, error) {
	return s.parent.Call(name, args...)
}

func (s *itemScope) Emit(name string, detail any) {
	s.parent.Emit(name, detail)
}

// valueScope is a fixed set of names, used to run prop validators.
type valueScope map[string]any

func (s valueScope) Get(name string) any { return s[name] }

func (s valueScope) Has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s valueScope) Set(name string, _ any) error {
	return fmt.Errorf("vm: %q is read-only here", name)
}

func (s valueScope) Call(name string, _ ...any) (any, error) {
	return nil, fmt.Errorf("vm: no method %q here", name)
}

func (s valueScope) Emit(string, any) {}
