package vm

import (
	"github.com/vango-dev/xvm/pkg/dom"
	"github.com/vango-dev/xvm/pkg/template"
)

// Lifecycle event names. Handlers are registered under these names either
// as methods of a Definition or through a Plugin.
const (
	OnCreate    = "onCreate"
	OnInit      = "onInit"
	OnReady     = "onReady"
	OnShow      = "onShow"
	OnHide      = "onHide"
	OnDestroy   = "onDestroy"
	OnBackPress = "onBackPress"
	OnMenuPress = "onMenuPress"
	OnRefresh   = "onRefresh"
)

var lifecycleEvents = map[string]bool{
	OnCreate:    true,
	OnInit:      true,
	OnReady:     true,
	OnShow:      true,
	OnHide:      true,
	OnDestroy:   true,
	OnBackPress: true,
	OnMenuPress: true,
	OnRefresh:   true,
}

// IsLifecycle reports whether name is a lifecycle event.
func IsLifecycle(name string) bool {
	return lifecycleEvents[name]
}

// Access levels for external data.
const (
	AccessPublic    = "public"
	AccessProtected = "protected"
	AccessPrivate   = "private"
)

var accessRank = map[string]int{
	AccessPublic:    0,
	AccessProtected: 1,
	AccessPrivate:   2,
}

// Definition describes a component.
type Definition struct {
	Name string

	// Data is the initial data: a map[string]any, copied per instance, or
	// a func() map[string]any called per instance.
	Data any

	Props    map[string]PropSpec
	Computed map[string]template.Expr

	// Methods are callable from templates and handlers. Methods named
	// after a lifecycle event are registered as its handler instead.
	Methods map[string]template.Handler

	// Events are instance event handlers registered at creation.
	Events map[string]template.Handler

	Template   *template.Node
	Components map[string]*Definition
	Directives map[string]Directive

	// ExternalClasses lists class names a parent may supply from its own
	// style table.
	ExternalClasses []string

	// Styles maps class selectors such as ".title" to declarations.
	Styles map[string]map[string]any

	// Access limits which keys external data may set on a root
	// component. Nil accepts every key.
	Access map[string]string

	// OnErrorCaptured sees errors raised in this instance or below. It
	// returns whether the error keeps propagating.
	OnErrorCaptured func(err error, origin *Instance, info string) bool
}

// PropSpec declares a prop.
type PropSpec struct {
	// Type is a kind name or several joined with "|": String, Number,
	// Boolean, Object, Array, Function. Empty accepts anything.
	Type string

	// Default is used when the prop is absent. A func() any is called
	// per instance.
	Default any

	Required  bool
	Validator func(v any) bool
}

// Directive is a custom directive. Every hook is optional.
type Directive struct {
	Bind   func(el *dom.Node, b DirectiveBinding)
	Update func(el *dom.Node, b DirectiveBinding)
	Unbind func(el *dom.Node, b DirectiveBinding)
}

// DirectiveBinding is passed to directive hooks.
type DirectiveBinding struct {
	Name     string
	Value    any
	OldValue any
	Instance *Instance
}

// FromBundle converts a loaded bundle, including its nested components.
func FromBundle(b *template.Bundle) *Definition {
	def := &Definition{
		Name:            b.Name,
		Data:            b.Data,
		Computed:        b.Computed,
		Methods:         b.Methods,
		Events:          b.Events,
		Template:        b.Template,
		Styles:          b.Styles,
		ExternalClasses: b.ExternalClasses,
		Access:          b.Access,
	}
	if len(b.Props) > 0 {
		def.Props = make(map[string]PropSpec, len(b.Props))
		for name, p := range b.Props {
			spec := PropSpec{Type: p.Type, Default: p.Default, Required: p.Required}
			if p.Validator != nil {
				spec.Validator = validatorFunc(p.Validator)
			}
			def.Props[name] = spec
		}
	}
	if len(b.Components) > 0 {
		def.Components = make(map[string]*Definition, len(b.Components))
		for name, c := range b.Components {
			def.Components[name] = FromBundle(c)
		}
	}
	return def
}

// validatorFunc evaluates expr with the candidate bound as value.
func validatorFunc(expr template.Expr) func(any) bool {
	return func(v any) bool {
		res, err := expr(valueScope{"value": v})
		return err == nil && template.Truthy(res)
	}
}
