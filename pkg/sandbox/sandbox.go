// Package sandbox compiles template expressions and handler bodies into
// risor scripts. Names a script reads are resolved through the template
// scope at evaluation time, so reads are tracked like any other access.
package sandbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/compiler"
	"github.com/risor-io/risor/object"
	"github.com/risor-io/risor/parser"

	"github.com/vango-dev/xvm/internal/errors"
	"github.com/vango-dev/xvm/pkg/template"
)

// Sandbox is a template.Compiler backed by risor.
type Sandbox struct {
	timeout time.Duration
	globals map[string]any
	logger  *slog.Logger
}

// Option configures a Sandbox.
type Option func(*Sandbox)

// WithTimeout bounds each evaluation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Sandbox) {
		s.timeout = d
	}
}

// WithGlobals adds host values visible to every script. Scope names
// shadow them.
func WithGlobals(globals map[string]any) Option {
	return func(s *Sandbox) {
		for k, v := range globals {
			s.globals[k] = v
		}
	}
}

// WithLogger sets the logger evaluation failures are traced to.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sandbox) {
		s.logger = l
	}
}

// New creates a Sandbox.
func New(opts ...Option) *Sandbox {
	s := &Sandbox{
		timeout: time.Second,
		globals: map[string]any{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ template.Compiler = (*Sandbox)(nil)

// CompileExpr compiles a single expression.
func (s *Sandbox) CompileExpr(src string) (template.Expr, error) {
	p, err := s.prepare(src)
	if err != nil {
		return nil, err
	}
	return func(scope template.Scope) (any, error) {
		return s.eval(p, scope, nil)
	}, nil
}

// CompileHandler compiles a handler or method body. The running event is
// bound as event, and a method's arguments as args.
func (s *Sandbox) CompileHandler(src string) (template.Handler, error) {
	p, err := s.prepare(src)
	if err != nil {
		return nil, err
	}
	return func(scope template.Scope, ev template.Event) (any, error) {
		extra := map[string]object.Object{
			"event": object.NewMap(map[string]object.Object{
				"type":   object.NewString(ev.Type),
				"detail": toObject("detail", ev.Detail),
				"target": toObject("target", ev.Target),
			}),
		}
		if args, ok := ev.Detail.([]any); ok {
			extra["args"] = toObject("args", args)
		} else {
			extra["args"] = object.NewList(nil)
		}
		return s.eval(p, scope, extra)
	}, nil
}

// Interpolate compiles text with {{ }} segments.
func (s *Sandbox) Interpolate(src string) (any, error) {
	return template.Interpolate(src, s)
}

type program struct {
	src   string
	code  *compiler.Code
	eager []string
}

// prepare parses and compiles src once. Free names become scope lookups
// evaluated on demand, so a run only depends on what it actually reads.
func (s *Sandbox) prepare(src string) (*program, error) {
	rewritten := rewriteDollar(src)
	if _, err := parser.Parse(context.Background(), rewritten); err != nil {
		return nil, errors.FromError(err, "E123").WithInfo(src)
	}
	b, err := bindNames(rewritten)
	if err != nil {
		return nil, errors.FromError(err, "E123").WithInfo(src)
	}
	ast, err := parser.Parse(context.Background(), b.src)
	if err != nil {
		return nil, errors.FromError(err, "E123").WithInfo(src)
	}

	p := &program{src: rewritten, eager: b.eager}
	cfg := risor.NewConfig(s.options(p, nil, nil)...)
	if p.code, err = compiler.Compile(ast, cfg.CompilerOpts()...); err != nil {
		return nil, errors.FromError(err, "E123").WithInfo(src)
	}
	return p, nil
}

// options binds the globals of one run. A nil scope binds placeholders
// for compilation.
func (s *Sandbox) options(p *program, scope template.Scope, extra map[string]object.Object) []risor.Option {
	opts := []risor.Option{
		risor.WithGlobal("assign", object.Nil),
		risor.WithGlobal("emit", object.Nil),
		risor.WithGlobal(lookupName, object.Nil),
		risor.WithGlobal("event", object.Nil),
		risor.WithGlobal("args", object.Nil),
	}
	for k, v := range s.globals {
		opts = append(opts, risor.WithGlobal(k, toObject(k, v)))
	}
	if scope == nil {
		for _, name := range p.eager {
			opts = append(opts, risor.WithGlobal(name, object.Nil))
		}
		return opts
	}

	opts = append(opts,
		risor.WithGlobal("assign", assignBuiltin(scope)),
		risor.WithGlobal("emit", emitBuiltin(scope)),
		risor.WithGlobal(lookupName, s.lookupBuiltin(scope)),
	)
	for k, v := range extra {
		opts = append(opts, risor.WithGlobal(k, v))
	}
	for _, name := range p.eager {
		if _, ok := extra[name]; ok {
			continue
		}
		opts = append(opts, risor.WithGlobal(name, s.lookup(scope, scopeNameOf(name))))
	}
	return opts
}

// lookup resolves a name against the scope, then the sandbox globals.
func (s *Sandbox) lookup(scope template.Scope, name string) object.Object {
	if scope.Has(name) {
		return toObject(name, scope.Get(name))
	}
	if v, ok := s.globals[name]; ok {
		return toObject(name, v)
	}
	return object.Nil
}

func (s *Sandbox) lookupBuiltin(scope template.Scope) *object.Builtin {
	return object.NewBuiltin(lookupName, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(lookupName, 1, len(args))
		}
		name, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("%s: name must be a string, got %s", lookupName, args[0].Type())
		}
		return s.lookup(scope, name.Value())
	})
}

func (s *Sandbox) eval(p *program, scope template.Scope, extra map[string]object.Object) (any, error) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out, err := risor.EvalCode(ctx, p.code, s.options(p, scope, extra)...)
	if err != nil {
		s.logger.Debug("script failed", "src", p.src, "error", err)
		return nil, errors.FromError(err, "E120").WithInfo(p.src)
	}
	return fromObject(out), nil
}

func assignBuiltin(scope template.Scope) *object.Builtin {
	return object.NewBuiltin("assign", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("assign", 2, len(args))
		}
		name, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("assign: name must be a string, got %s", args[0].Type())
		}
		if err := scope.Set(name.Value(), fromObject(args[1])); err != nil {
			return object.Errorf("assign: %v", err)
		}
		return args[1]
	})
}

func emitBuiltin(scope template.Scope) *object.Builtin {
	return object.NewBuiltin("emit", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 2 {
			return object.NewArgsError("emit", 1, len(args))
		}
		name, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("emit: event name must be a string, got %s", args[0].Type())
		}
		var detail any
		if len(args) == 2 {
			detail = fromObject(args[1])
		}
		scope.Emit(name.Value(), detail)
		return object.Nil
	})
}
