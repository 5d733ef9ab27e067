package template

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vango-dev/xvm/internal/errors"
)

// Bundle is a component definition loaded from YAML.
type Bundle struct {
	Name            string
	Data            map[string]any
	Props           map[string]PropDecl
	Computed        map[string]Expr
	Methods         map[string]Handler
	Events          map[string]Handler
	Template        *Node
	Components      map[string]*Bundle
	Styles          map[string]map[string]any
	ExternalClasses []string
	Access          map[string]string
}

// PropDecl declares a prop in a bundle.
type PropDecl struct {
	Type      string
	Default   any
	Required  bool
	Validator Expr
}

type rawBundle struct {
	Name            string                    `yaml:"name"`
	Data            map[string]any            `yaml:"data"`
	Props           yaml.Node                 `yaml:"props"`
	Computed        map[string]string         `yaml:"computed"`
	Methods         map[string]string         `yaml:"methods"`
	Events          map[string]string         `yaml:"events"`
	Template        *rawNode                  `yaml:"template"`
	Components      map[string]yaml.Node      `yaml:"components"`
	Styles          map[string]map[string]any `yaml:"styles"`
	ExternalClasses []string                  `yaml:"externalClasses"`
	Access          map[string]string         `yaml:"access"`
}

type rawProp struct {
	Type      string `yaml:"type"`
	Default   any    `yaml:"default"`
	Required  bool   `yaml:"required"`
	Validator string `yaml:"validator"`
}

type rawNode struct {
	Type       string            `yaml:"type"`
	ID         string            `yaml:"id"`
	Attr       map[string]any    `yaml:"attr"`
	Class      any               `yaml:"class"`
	Style      any               `yaml:"style"`
	Events     map[string]string `yaml:"events"`
	For        any               `yaml:"for"`
	If         any               `yaml:"if"`
	Is         string            `yaml:"is"`
	Slot       string            `yaml:"slot"`
	Append     string            `yaml:"append"`
	Directives []rawDirective    `yaml:"directives"`
	Children   []*rawNode        `yaml:"children"`
}

type rawDirective struct {
	Name  string `yaml:"name"`
	Value any    `yaml:"value"`
}

// loader carries state across one load, including nested files.
type loader struct {
	c       Compiler
	dir     string
	loading map[string]bool
}

// LoadBundle reads a bundle from r. Components given as file paths are
// rejected; use LoadBundleFile for those.
func LoadBundle(r io.Reader, c Compiler) (*Bundle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.FromError(err, "E222")
	}
	l := &loader{c: c, loading: map[string]bool{}}
	return l.parse(data, "")
}

// LoadBundleFile reads a bundle from path. Components given as strings
// are loaded relative to the file that names them.
func LoadBundleFile(path string, c Compiler) (*Bundle, error) {
	l := &loader{c: c, loading: map[string]bool{}}
	return l.file(path)
}

func (l *loader) file(path string) (*Bundle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.FromError(err, "E222").WithInfo(path)
	}
	if l.loading[abs] {
		return nil, errors.New("E222").WithInfo(path).
			WithDetail("component files include each other")
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errors.FromError(err, "E222").WithInfo(path)
	}

	l.loading[abs] = true
	defer delete(l.loading, abs)

	prev := l.dir
	l.dir = filepath.Dir(abs)
	defer func() { l.dir = prev }()

	b, err := l.parse(data, path)
	if err != nil {
		return nil, err
	}
	if b.Name == "" {
		b.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return b, nil
}

func (l *loader) parse(data []byte, source string) (*Bundle, error) {
	var raw rawBundle
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && err != io.EOF {
		return nil, errors.FromError(err, "E222").WithInfo(source)
	}
	return l.bundle(&raw, source)
}

func (l *loader) bundle(raw *rawBundle, source string) (*Bundle, error) {
	b := &Bundle{
		Name:            raw.Name,
		Data:            raw.Data,
		Props:           map[string]PropDecl{},
		Computed:        map[string]Expr{},
		Methods:         map[string]Handler{},
		Events:          map[string]Handler{},
		Components:      map[string]*Bundle{},
		Styles:          raw.Styles,
		ExternalClasses: raw.ExternalClasses,
		Access:          raw.Access,
	}

	if err := l.props(&raw.Props, b); err != nil {
		return nil, errors.FromError(err, "E222").WithInfo(source)
	}
	for name, src := range raw.Computed {
		e, err := l.c.CompileExpr(stripDelims(src))
		if err != nil {
			return nil, errors.FromError(err, "E123").WithInfo("computed " + name)
		}
		b.Computed[name] = e
	}
	for name, src := range raw.Methods {
		h, err := l.c.CompileHandler(src)
		if err != nil {
			return nil, errors.FromError(err, "E123").WithInfo("method " + name)
		}
		b.Methods[name] = h
	}
	for name, src := range raw.Events {
		h, err := l.c.CompileHandler(src)
		if err != nil {
			return nil, errors.FromError(err, "E123").WithInfo("event " + name)
		}
		b.Events[name] = h
	}

	for _, name := range sortedNames(raw.Components) {
		n := raw.Components[name]
		child, err := l.component(&n)
		if err != nil {
			return nil, errors.FromError(err, "E222").WithInfo("component " + name)
		}
		if child.Name == "" {
			child.Name = name
		}
		b.Components[name] = child
	}

	if raw.Template != nil {
		t, err := l.node(raw.Template)
		if err != nil {
			return nil, errors.FromError(err, "E100").WithInfo(source)
		}
		b.Template = t
	}
	return b, nil
}

func (l *loader) props(n *yaml.Node, b *Bundle) error {
	switch n.Kind {
	case 0:
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := n.Decode(&names); err != nil {
			return err
		}
		for _, name := range names {
			b.Props[name] = PropDecl{}
		}
		return nil
	case yaml.MappingNode:
		var decls map[string]rawProp
		if err := n.Decode(&decls); err != nil {
			return err
		}
		for name, d := range decls {
			p := PropDecl{Type: d.Type, Default: d.Default, Required: d.Required}
			if d.Validator != "" {
				e, err := l.c.CompileExpr(stripDelims(d.Validator))
				if err != nil {
					return errors.FromError(err, "E123").WithInfo("validator " + name)
				}
				p.Validator = e
			}
			b.Props[name] = p
		}
		return nil
	}
	return fmt.Errorf("props must be a list or a map (line %d)", n.Line)
}

func (l *loader) component(n *yaml.Node) (*Bundle, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if l.dir == "" {
			return nil, fmt.Errorf("file reference %q needs LoadBundleFile", n.Value)
		}
		path := n.Value
		if !filepath.IsAbs(path) {
			path = filepath.Join(l.dir, path)
		}
		return l.file(path)
	case yaml.MappingNode:
		var raw rawBundle
		if err := n.Decode(&raw); err != nil {
			return nil, err
		}
		return l.bundle(&raw, "")
	}
	return nil, fmt.Errorf("component must be a path or a mapping (line %d)", n.Line)
}

func (l *loader) node(raw *rawNode) (*Node, error) {
	n := &Node{
		Type:   raw.Type,
		Slot:   raw.Slot,
		Append: raw.Append,
	}
	if raw.ID != "" {
		v, err := Interpolate(raw.ID, l.c)
		if err != nil {
			return nil, err
		}
		n.ID = v
	}
	if len(raw.Attr) > 0 {
		n.Attr = make(map[string]any, len(raw.Attr))
		for k, v := range raw.Attr {
			cv, err := l.value(v)
			if err != nil {
				return nil, err
			}
			n.Attr[k] = cv
		}
	}

	classes, err := l.classes(raw.Class)
	if err != nil {
		return nil, err
	}
	n.Classes = classes

	style, err := l.style(raw.Style)
	if err != nil {
		return nil, err
	}
	n.Style = style

	if len(raw.Events) > 0 {
		n.Events = make(map[string]any, len(raw.Events))
		for typ, src := range raw.Events {
			if isIdent(src) {
				n.Events[typ] = src
				continue
			}
			h, err := l.c.CompileHandler(src)
			if err != nil {
				return nil, errors.FromError(err, "E123").WithInfo("on " + typ)
			}
			n.Events[typ] = h
		}
	}

	if raw.For != nil {
		r, err := l.repeat(raw.For)
		if err != nil {
			return nil, err
		}
		n.Repeat = r
	}
	if raw.If != nil {
		v, err := l.value(raw.If)
		if err != nil {
			return nil, err
		}
		n.Shown = v
	}
	if raw.Is != "" {
		v, err := Interpolate(raw.Is, l.c)
		if err != nil {
			return nil, err
		}
		n.Is = v
	}
	for _, d := range raw.Directives {
		v, err := l.value(d.Value)
		if err != nil {
			return nil, err
		}
		n.Directives = append(n.Directives, Directive{Name: d.Name, Value: v})
	}
	for _, c := range raw.Children {
		child, err := l.node(c)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

// value interpolates strings and leaves other YAML scalars constant.
func (l *loader) value(v any) (any, error) {
	if s, ok := v.(string); ok {
		return Interpolate(s, l.c)
	}
	return v, nil
}

func (l *loader) classes(v any) (any, error) {
	switch c := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.Contains(c, openDelim) {
			return Interpolate(c, l.c)
		}
		var out []any
		for _, f := range strings.Fields(c) {
			out = append(out, f)
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(c))
		for _, item := range c {
			cv, err := l.value(item)
			if err != nil {
				return nil, err
			}
			out = append(out, cv)
		}
		return out, nil
	}
	return nil, fmt.Errorf("class must be a string or a list, got %T", v)
}

func (l *loader) style(v any) (any, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		return Interpolate(s, l.c)
	case map[string]any:
		out := make(map[string]any, len(s))
		for k, item := range s {
			cv, err := l.value(item)
			if err != nil {
				return nil, err
			}
			out[k] = cv
		}
		return out, nil
	}
	return nil, fmt.Errorf("style must be a string or a map, got %T", v)
}

func (l *loader) repeat(v any) (*Repeat, error) {
	switch f := v.(type) {
	case string:
		e, err := l.c.CompileExpr(stripDelims(f))
		if err != nil {
			return nil, err
		}
		return &Repeat{Exp: e}, nil
	case int:
		return &Repeat{Exp: f}, nil
	case []any:
		return &Repeat{Exp: f}, nil
	case map[string]any:
		r := &Repeat{}
		switch exp := f["exp"].(type) {
		case string:
			e, err := l.c.CompileExpr(stripDelims(exp))
			if err != nil {
				return nil, err
			}
			r.Exp = e
		default:
			r.Exp = exp
		}
		r.Key, _ = f["key"].(string)
		r.Value, _ = f["value"].(string)
		r.TrackBy, _ = f["trackBy"].(string)
		return r, nil
	}
	return nil, fmt.Errorf("for must be an expression or a mapping, got %T", v)
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
