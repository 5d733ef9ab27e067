package template

import (
	"strings"

	"github.com/vango-dev/xvm/internal/errors"
)

// Compiler turns source text into Exprs and Handlers.
type Compiler interface {
	CompileExpr(src string) (Expr, error)
	CompileHandler(src string) (Handler, error)
}

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// Interpolate compiles text with {{ }} segments. Text without segments is
// returned as a constant string. A lone segment yields the expression
// value unchanged; mixed text yields the concatenated string.
func Interpolate(src string, c Compiler) (any, error) {
	if !strings.Contains(src, openDelim) {
		return src, nil
	}

	var parts []any
	rest := src
	for rest != "" {
		i := strings.Index(rest, openDelim)
		if i < 0 {
			parts = append(parts, rest)
			break
		}
		if i > 0 {
			parts = append(parts, rest[:i])
		}
		rest = rest[i+len(openDelim):]
		j := strings.Index(rest, closeDelim)
		if j < 0 {
			return nil, errors.New("E123").
				WithDetailf("unterminated %s in %q", openDelim, src)
		}
		expr, err := c.CompileExpr(strings.TrimSpace(rest[:j]))
		if err != nil {
			return nil, errors.FromError(err, "E123").WithInfo(src)
		}
		parts = append(parts, expr)
		rest = rest[j+len(closeDelim):]
	}

	if len(parts) == 1 {
		if e, ok := parts[0].(Expr); ok {
			return e, nil
		}
	}
	return concat(parts), nil
}

func concat(parts []any) Expr {
	return func(s Scope) (any, error) {
		var b strings.Builder
		for _, p := range parts {
			switch v := p.(type) {
			case string:
				b.WriteString(v)
			case Expr:
				out, err := v(s)
				if err != nil {
					return nil, err
				}
				b.WriteString(String(out))
			}
		}
		return b.String(), nil
	}
}

// stripDelims removes a single enclosing {{ }} pair, so computed and
// repeat sources may be written either way.
func stripDelims(src string) string {
	s := strings.TrimSpace(src)
	if strings.HasPrefix(s, openDelim) && strings.HasSuffix(s, closeDelim) &&
		strings.Count(s, openDelim) == 1 {
		return strings.TrimSpace(s[len(openDelim) : len(s)-len(closeDelim)])
	}
	return s
}
