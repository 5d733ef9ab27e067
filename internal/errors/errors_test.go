package errors

import (
	"encoding/json"
	stderrors "errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{"compile error", "E101", "Unknown component", CategoryCompile},
		{"evaluation error", "E120", "Expression evaluation failed", CategoryEvaluation},
		{"scheduler error", "E160", "Scheduled task failed", CategoryScheduler},
		{"unknown error code", "E999", "Unknown error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestErrorString(t *testing.T) {
	cause := stderrors.New("boom")
	err := New("E120").WithDetail("count * 2").Wrap(cause)

	want := "E120: Expression evaluation failed: count * 2: boom"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestWithComponentKeepsInnermost(t *testing.T) {
	err := New("E140").WithComponent("child").WithComponent("parent")
	if err.Component != "child" {
		t.Errorf("Component = %q, want %q", err.Component, "child")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "E160") != nil {
		t.Error("FromError(nil) should be nil")
	}

	orig := New("E101")
	if got := FromError(orig, "E160"); got != orig {
		t.Error("FromError should return an existing XError unchanged")
	}

	plain := stderrors.New("plain")
	got := FromError(plain, "E160")
	if got.Code != "E160" || got.Wrapped != plain {
		t.Errorf("FromError = %+v, want E160 wrapping plain", got)
	}
}

func TestRecovered(t *testing.T) {
	err := Recovered("E140", "kaboom")
	if err.Code != "E140" {
		t.Errorf("Code = %q, want E140", err.Code)
	}
	if !strings.Contains(err.Error(), "panic: kaboom") {
		t.Errorf("Error() = %q, want panic text", err.Error())
	}
	if err.Stack == "" {
		t.Error("Stack should be captured")
	}
}

func TestCodeAndCategoryOf(t *testing.T) {
	err := error(New("E182"))
	if CodeOf(err) != "E182" {
		t.Errorf("CodeOf = %q, want E182", CodeOf(err))
	}
	if CategoryOf(err) != CategoryProp {
		t.Errorf("CategoryOf = %q, want prop", CategoryOf(err))
	}
	if CodeOf(stderrors.New("x")) != "" {
		t.Error("CodeOf(plain) should be empty")
	}
}

func TestSuggest(t *testing.T) {
	candidates := []string{"todo-item", "todo-list", "header"}

	tests := []struct {
		name string
		want string
	}{
		{"todo-itme", "todo-item"},
		{"headr", "header"},
		{"completely-different", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Closest(tt.name, candidates); got != tt.want {
				t.Errorf("Closest(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}

	if got := Suggest("headr", candidates); got != `Did you mean "header"?` {
		t.Errorf("Suggest = %q", got)
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	err := New("E101").
		WithComponent("page").
		WithDetail(`component "todo-itme" is not registered`).
		WithSuggestion(`Did you mean "todo-item"?`)

	out := err.Format()
	for _, want := range []string{"ERROR E101: Unknown component", "page", "not registered", `Hint: Did you mean "todo-item"?`} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q in:\n%s", want, out)
		}
	}

	if got := err.FormatCompact(); got != `page: E101: Unknown component: component "todo-itme" is not registered` {
		t.Errorf("FormatCompact() = %q", got)
	}
}

func TestFormatJSON(t *testing.T) {
	err := New("E120").WithInfo("watcher:title")
	got := err.FormatJSON()
	want := `{"code":"E120","category":"evaluation","message":"Expression evaluation failed","info":"watcher:title"}`
	if got != want {
		t.Errorf("FormatJSON() = %s, want %s", got, want)
	}
}

func TestFormatJSONEscapes(t *testing.T) {
	err := New("E123").
		WithComponent(`say "hi"`).
		WithDetail("line 1\nline 2\x00\x1b[31m\ttab").
		WithSuggestion("use <b> & \u2028")

	out := err.FormatJSON()
	if strings.ContainsAny(out, "\n\x00\x1b") {
		t.Fatalf("FormatJSON() left raw control bytes: %q", out)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("FormatJSON() is not valid JSON: %v\n%s", err, out)
	}
	want := map[string]string{
		"code":       "E123",
		"category":   "evaluation",
		"message":    "Expression failed to compile",
		"component":  `say "hi"`,
		"detail":     "line 1\nline 2\x00\x1b[31m\ttab",
		"suggestion": "use <b> & \u2028",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}
