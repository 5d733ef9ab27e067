package template

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/vango-dev/xvm/internal/errors"
	"github.com/vango-dev/xvm/pkg/reactive"
)

// pathCompiler treats every expression as a dotted path and every handler
// as a method name.
type pathCompiler struct{}

func (pathCompiler) CompileExpr(src string) (Expr, error) {
	if strings.ContainsAny(src, " +") {
		return nil, fmt.Errorf("unsupported expression %q", src)
	}
	return Path(src), nil
}

func (pathCompiler) CompileHandler(src string) (Handler, error) {
	name := strings.TrimSuffix(src, "()")
	return func(s Scope, ev Event) (any, error) {
		return s.Call(name, ev.Detail)
	}, nil
}

type mapScope struct {
	vars  map[string]any
	calls []string
}

func (m *mapScope) Get(name string) any { return m.vars[name] }
func (m *mapScope) Has(name string) bool {
	_, ok := m.vars[name]
	return ok
}
func (m *mapScope) Set(name string, v any) error {
	m.vars[name] = v
	return nil
}
func (m *mapScope) Call(name string, args ...any) (any, error) {
	m.calls = append(m.calls, name)
	return nil, nil
}
func (m *mapScope) Emit(string, any) {}

func TestInterpolate(t *testing.T) {
	s := &mapScope{vars: map[string]any{
		"name":  "ada",
		"count": 3,
		"user":  map[string]any{"age": 36.0},
	}}

	tests := []struct {
		src  string
		want any
	}{
		{"plain", "plain"},
		{"{{ name }}", "ada"},
		{"{{count}}", 3},
		{"hi {{ name }}!", "hi ada!"},
		{"{{ name }}/{{ user.age }}", "ada/36"},
		{"{{ missing }}x", "x"},
	}
	for _, tt := range tests {
		v, err := Interpolate(tt.src, pathCompiler{})
		if err != nil {
			t.Fatalf("Interpolate(%q) error: %v", tt.src, err)
		}
		got, err := Eval(v, s)
		if err != nil {
			t.Fatalf("Eval(%q) error: %v", tt.src, err)
		}
		if got != tt.want {
			t.Errorf("Interpolate(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
}

func TestInterpolateErrors(t *testing.T) {
	if _, err := Interpolate("a {{ b", pathCompiler{}); errors.CodeOf(err) != "E123" {
		t.Errorf("unterminated code = %q, want E123", errors.CodeOf(err))
	}
	if _, err := Interpolate("{{ a + b }}", pathCompiler{}); errors.CodeOf(err) != "E123" {
		t.Errorf("compile failure code = %q, want E123", errors.CodeOf(err))
	}
}

func TestPathThroughRecord(t *testing.T) {
	user := reactive.NewRecord(map[string]any{"name": "ada"})
	s := &mapScope{vars: map[string]any{"user": user}}

	got, _ := Path("user.name")(s)
	if got != "ada" {
		t.Errorf("Path = %v, want ada", got)
	}
	got, _ = Path("user.name.first")(s)
	if got != nil {
		t.Errorf("Path past a leaf = %v, want nil", got)
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		v    any
		want bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{0, false},
		{0.0, false},
		{2, true},
		{"", false},
		{"x", true},
		{[]any{}, true},
		{reactive.NewList(), true},
	}
	for _, tt := range tests {
		if got := Truthy(tt.v); got != tt.want {
			t.Errorf("Truthy(%#v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		v    any
		want string
	}{
		{nil, ""},
		{"a", "a"},
		{3.0, "3"},
		{2.5, "2.5"},
		{7, "7"},
		{true, "true"},
	}
	for _, tt := range tests {
		if got := String(tt.v); got != tt.want {
			t.Errorf("String(%#v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestNodeKind(t *testing.T) {
	tests := []struct {
		typ  string
		want Kind
	}{
		{"", KindFragment},
		{"slot", KindSlot},
		{"component", KindComponent},
		{"block", KindBlock},
		{"richtext", KindRichText},
		{"div", KindElement},
		{"todo-item", KindElement},
	}
	for _, tt := range tests {
		n := &Node{Type: tt.typ}
		if got := n.Kind(); got != tt.want {
			t.Errorf("Node{Type: %q}.Kind() = %v, want %v", tt.typ, got, tt.want)
		}
	}
}

const todoBundle = `
name: todo
data:
  title: Todos
  items: []
props:
  limit:
    type: number
    default: 10
    validator: "{{ value }}"
  label:
    type: string
    required: true
computed:
  heading: "{{ title }}"
methods:
  add: push()
events:
  onInit: load()
externalClasses: [item-class]
access:
  title: public
template:
  type: div
  class: list {{ theme }}
  style:
    color: "{{ color }}"
    margin: 4px
  children:
    - type: text
      attr:
        value: "{{ title }} ({{ count }})"
    - type: item
      for:
        exp: items
        value: it
        trackBy: id
      events:
        click: select
        longpress: remove()
    - type: text
      if: "{{ empty }}"
      directives:
        - name: focus
          value: "{{ empty }}"
components:
  item:
    props: [text]
    template:
      type: text
      attr:
        value: "{{ text }}"
`

func TestLoadBundle(t *testing.T) {
	b, err := LoadBundle(strings.NewReader(todoBundle), pathCompiler{})
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}

	if b.Name != "todo" {
		t.Errorf("Name = %q, want todo", b.Name)
	}
	if diff := cmp.Diff(map[string]any{"title": "Todos", "items": []any{}}, b.Data); diff != "" {
		t.Errorf("Data mismatch (-want +got):\n%s", diff)
	}
	if p := b.Props["limit"]; p.Type != "number" || p.Default != 10 || p.Validator == nil {
		t.Errorf("Props[limit] = %+v", p)
	}
	if !b.Props["label"].Required {
		t.Error("Props[label].Required = false, want true")
	}
	if b.Computed["heading"] == nil || b.Methods["add"] == nil || b.Events["onInit"] == nil {
		t.Error("computed, method or event handler missing")
	}
	if diff := cmp.Diff([]string{"item-class"}, b.ExternalClasses); diff != "" {
		t.Errorf("ExternalClasses mismatch (-want +got):\n%s", diff)
	}
	if b.Access["title"] != "public" {
		t.Errorf("Access[title] = %q, want public", b.Access["title"])
	}

	root := b.Template
	if root.Type != "div" || len(root.Children) != 3 {
		t.Fatalf("root = %q with %d children", root.Type, len(root.Children))
	}
	if !IsDynamic(root.Classes) {
		t.Errorf("Classes = %T, want Expr", root.Classes)
	}
	style := root.Style.(map[string]any)
	if style["margin"] != "4px" || !IsDynamic(style["color"]) {
		t.Errorf("Style = %v", style)
	}

	item := root.Children[1]
	if item.Repeat == nil || item.Repeat.Value != "it" || item.Repeat.TrackBy != "id" {
		t.Fatalf("Repeat = %+v", item.Repeat)
	}
	if item.Events["click"] != "select" {
		t.Errorf("Events[click] = %v, want method name select", item.Events["click"])
	}
	if _, ok := item.Events["longpress"].(Handler); !ok {
		t.Errorf("Events[longpress] = %T, want Handler", item.Events["longpress"])
	}

	cond := root.Children[2]
	if !IsDynamic(cond.Shown) || len(cond.Directives) != 1 || cond.Directives[0].Name != "focus" {
		t.Errorf("conditional node = %+v", cond)
	}

	child := b.Components["item"]
	if child == nil || child.Name != "item" {
		t.Fatalf("Components[item] = %+v", child)
	}
	if _, ok := child.Props["text"]; !ok {
		t.Error("list-form props not loaded")
	}

	s := &mapScope{vars: map[string]any{"title": "Todos", "count": 2}}
	got, _ := Eval(root.Children[0].Attr["value"], s)
	if got != "Todos (2)" {
		t.Errorf("text value = %v, want Todos (2)", got)
	}

	if _, err := b.Events["onInit"](s, Event{Type: "onInit"}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"load"}, s.calls); diff != "" {
		t.Errorf("handler calls mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadBundleRejectsUnknownFields(t *testing.T) {
	_, err := LoadBundle(strings.NewReader("name: x\ntemplat: {}\n"), pathCompiler{})
	if errors.CodeOf(err) != "E222" {
		t.Errorf("code = %q, want E222", errors.CodeOf(err))
	}
}

func TestLoadBundleRejectsFileComponents(t *testing.T) {
	_, err := LoadBundle(strings.NewReader("components:\n  a: a.yaml\n"), pathCompiler{})
	if err == nil {
		t.Fatal("expected error for file component without a directory")
	}
}

func TestLoadBundleFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("page.yaml", "components:\n  card: card.yaml\ntemplate:\n  type: card\n")
	write("card.yaml", "template:\n  type: text\n")

	b, err := LoadBundleFile(filepath.Join(dir, "page.yaml"), pathCompiler{})
	if err != nil {
		t.Fatalf("LoadBundleFile: %v", err)
	}
	if b.Name != "page" {
		t.Errorf("Name = %q, want page", b.Name)
	}
	card := b.Components["card"]
	if card == nil || card.Name != "card" || card.Template.Type != "text" {
		t.Errorf("Components[card] = %+v", card)
	}
}

func TestLoadBundleFileCycle(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("components:\n  b: b.yaml\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("components:\n  a: a.yaml\n"), 0o644)

	_, err := LoadBundleFile(filepath.Join(dir, "a.yaml"), pathCompiler{})
	if errors.CodeOf(err) != "E222" {
		t.Errorf("code = %q, want E222", errors.CodeOf(err))
	}
}
