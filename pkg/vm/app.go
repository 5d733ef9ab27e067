package vm

import (
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/vango-dev/xvm/internal/errors"
	"github.com/vango-dev/xvm/pkg/bridge"
	"github.com/vango-dev/xvm/pkg/dom"
	"github.com/vango-dev/xvm/pkg/sched"
	"github.com/vango-dev/xvm/pkg/template"
)

// RichTextParser turns non-html rich text content into a template.
type RichTextParser interface {
	Parse(contentType, content string) (*template.Node, error)
}

// Hook is a plugin lifecycle handler.
type Hook func(inst *Instance, detail any)

// Plugin maps lifecycle event names to hooks run on every instance.
type Plugin map[string]Hook

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger for diagnostics and unhandled errors.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

// WithBridge sets the module registry instances invoke host modules
// through.
func WithBridge(r *bridge.Registry) Option {
	return func(a *App) {
		a.bridge = r
	}
}

// WithRichTextParser sets the parser for non-html rich text.
func WithRichTextParser(p RichTextParser) Option {
	return func(a *App) {
		a.richText = p
	}
}

// WithDirective registers an app-wide custom directive.
func WithDirective(name string, d Directive) Option {
	return func(a *App) {
		a.directives[strings.ToLower(name)] = d
	}
}

// WithAppData sets data merged into every instance's data.
func WithAppData(data map[string]any) Option {
	return func(a *App) {
		a.data = data
	}
}

// WithErrorHandler sets the root error handler.
func WithErrorHandler(fn func(error)) Option {
	return func(a *App) {
		a.onError = fn
	}
}

// WithExecutorOptions adds options to every page executor.
func WithExecutorOptions(opts ...sched.Option) Option {
	return func(a *App) {
		a.execOpts = append(a.execOpts, opts...)
	}
}

// WithDocumentOptions adds options to every page document.
func WithDocumentOptions(opts ...dom.Option) Option {
	return func(a *App) {
		a.docOpts = append(a.docOpts, opts...)
	}
}

// App holds component definitions and the collaborators pages share.
type App struct {
	mu      sync.RWMutex
	defs    map[string]*Definition
	plugins []Plugin
	onError func(error)

	directives map[string]Directive
	data       map[string]any
	bridge     *bridge.Registry
	richText   RichTextParser

	execOpts []sched.Option
	docOpts  []dom.Option
	logger   *slog.Logger
}

// NewApp creates an app.
func NewApp(opts ...Option) *App {
	a := &App{
		defs:       make(map[string]*Definition),
		directives: make(map[string]Directive),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Define registers a component definition under name.
func (a *App) Define(name string, def *Definition) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if def.Name == "" {
		def.Name = name
	}
	a.defs[name] = def
}

// Definition returns the definition registered under name.
func (a *App) Definition(name string) (*Definition, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if def, ok := a.defs[name]; ok {
		return def, nil
	}
	return nil, errors.New("E101").
		WithDetailf("component %q is not defined", name).
		WithSuggestion(errors.Suggest(name, slices.Collect(maps.Keys(a.defs))))
}

func (a *App) lookup(name string) (*Definition, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	def, ok := a.defs[name]
	return def, ok
}

// Components returns the registered names in order.
func (a *App) Components() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Sorted(maps.Keys(a.defs))
}

// RequireModule returns a host module from the bridge.
func (a *App) RequireModule(name string) (*bridge.Module, error) {
	if a.bridge == nil {
		return nil, errors.New("E200").WithDetailf("module %q: no bridge configured", name)
	}
	return a.bridge.Module(name)
}

// Use registers plugin hooks. Keys that are not lifecycle events are
// ignored with a warning. p itself is left untouched.
func (a *App) Use(p Plugin) {
	hooks := make(Plugin, len(p))
	for name, hook := range p {
		if !IsLifecycle(name) {
			a.logger.Warn("plugin hook is not a lifecycle event", "hook", name)
			continue
		}
		hooks[name] = hook
	}
	a.mu.Lock()
	a.plugins = append(a.plugins, hooks)
	a.mu.Unlock()
}

func (a *App) pluginList() []Plugin {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.plugins
}

// SetErrorHandler replaces the root error handler.
func (a *App) SetErrorHandler(fn func(error)) {
	a.mu.Lock()
	a.onError = fn
	a.mu.Unlock()
}

// BootstrapOptions configures a page.
type BootstrapOptions struct {
	// ID is the page id. Empty means a random uuid.
	ID string

	// Sink receives the page's command batches.
	Sink dom.Sink

	// Deferrer runs deferred flushes. Nil means flushes only happen
	// through Page.Flush.
	Deferrer sched.Deferrer

	// Dispatch delivers host module callbacks onto the goroutine driving
	// the page. Nil runs them on whichever goroutine fires them.
	Dispatch bridge.Dispatcher

	// Data is external data for the root instance, filtered by the
	// definition's Access table.
	Data map[string]any

	// Internal marks Data as coming from the app itself, which may also
	// set protected keys.
	Internal bool

	// Events are extra listeners for the root instance.
	Events map[string]Listener

	// Query is passed to the root's onInit handlers.
	Query any
}

// Bootstrap instantiates the component registered as name into a new
// page and commits the initial build.
func (a *App) Bootstrap(name string, opts BootstrapOptions) (*Page, error) {
	def, err := a.Definition(name)
	if err != nil {
		return nil, err
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Sink == nil {
		opts.Sink = dom.SinkFunc(func(string, []dom.Command) error { return nil })
	}

	p := newPage(a, opts)
	p.root = newInstance(p, def, name, nil, p.doc.Root(), &opts)
	if err := p.doc.FinishCreate(); err != nil {
		return p, err
	}
	return p, nil
}

// report hands an error that no instance stopped to the root handler.
func (a *App) report(err error) {
	a.mu.RLock()
	onError := a.onError
	a.mu.RUnlock()
	if onError == nil {
		a.logError(err)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			a.logError(errors.Recovered("E143", r).WithDetailf("while handling: %v", err))
		}
	}()
	onError(err)
}

func (a *App) logError(err error) {
	var xe *errors.XError
	if !errors.As(err, &xe) {
		a.logger.Error("unhandled error", "error", err)
		return
	}
	a.logger.Error(xe.Message,
		"code", xe.Code,
		"category", xe.Category,
		"component", xe.Component,
		"info", xe.Info,
		"error", err)
}
