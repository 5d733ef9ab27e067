package sandbox

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/risor-io/risor/lexer"
	"github.com/risor-io/risor/token"
)

// reserved names are left to risor: keywords, builtins, default modules
// and the globals every script gets.
var reserved = map[string]bool{}

func init() {
	for _, name := range strings.Fields(`
		break case const continue default defer else false for from func go
		if import in nil not range return switch true var struct
		all any assert bool buffer byte byte_slice bytes call chan chunk close
		coalesce decode delete encode error float getattr hash int iter keys
		len list make map ord print printf reversed set sorted spawn sprintf
		string try type
		base64 bytes errors exec filepath fmt json math os rand regexp strconv
		strings time
		assign emit event args __scope__`) {
		reserved[name] = true
	}
}

var (
	localDecl = regexp.MustCompile(`([A-Za-z_]\w*(?:\s*,\s*[A-Za-z_]\w*)*)\s*:=`)
	funcDecl  = regexp.MustCompile(`func\s*(\w*)\s*\(([^)]*)\)`)
	identRe   = regexp.MustCompile(`\w+`)
)

// lookupName is the builtin scripts read scope names through.
const lookupName = "__scope__"

// assignOps follow names that are written rather than read.
var assignOps = map[token.Type]bool{
	token.ASSIGN:          true,
	token.PLUS_EQUALS:     true,
	token.MINUS_EQUALS:    true,
	token.ASTERISK_EQUALS: true,
	token.SLASH_EQUALS:    true,
	token.PLUS_PLUS:       true,
	token.MINUS_MINUS:     true,
}

// binding is a script with its scope reads resolved.
type binding struct {
	// src has every free name read rewritten to a lookup call, so a name
	// is only read from the scope when evaluation reaches it.
	src string

	// eager names cannot be rewritten (assignment targets, f-string
	// segments) and are bound before each run.
	eager []string
}

// bindNames rewrites the free names src reads into lookups. Attribute
// names, map literal keys, declared locals and reserved names are left
// alone.
func bindNames(src string) (*binding, error) {
	toks, err := tokens(src)
	if err != nil {
		return nil, err
	}
	locals := localNames(src, toks)

	rs := []rune(src)
	var (
		b     strings.Builder
		last  int
		stack []token.Type
	)
	eager := map[string]bool{}
	for i, tok := range toks {
		switch tok.Type {
		case token.LBRACE, token.LBRACKET, token.LPAREN:
			stack = append(stack, tok.Type)
		case token.RBRACE, token.RBRACKET, token.RPAREN:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case token.FSTRING:
			for _, name := range templateNames(tok.Literal) {
				if !locals[name] {
					eager[name] = true
				}
			}
		case token.IDENT:
			name := tok.Literal
			if reserved[name] || locals[name] {
				continue
			}
			prev, next := typeAt(toks, i-1), typeAt(toks, i+1)
			if prev == token.PERIOD {
				continue
			}
			if next == token.COLON && len(stack) > 0 && stack[len(stack)-1] == token.LBRACE &&
				(prev == token.LBRACE || prev == token.COMMA || prev == token.NEWLINE) {
				continue
			}
			if assignOps[next] {
				eager[name] = true
				continue
			}
			start := tok.StartPosition.Char
			b.WriteString(string(rs[last:start]))
			fmt.Fprintf(&b, "%s(%q)", lookupName, scopeNameOf(name))
			last = start + len([]rune(name))
		}
	}
	b.WriteString(string(rs[last:]))

	names := make([]string, 0, len(eager))
	for name := range eager {
		names = append(names, name)
	}
	sort.Strings(names)
	return &binding{src: b.String(), eager: names}, nil
}

func tokens(src string) ([]token.Token, error) {
	l := lexer.New(src)
	var out []token.Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		if tok.Type == token.EOF {
			return out, nil
		}
		out = append(out, tok)
	}
}

func typeAt(toks []token.Token, i int) token.Type {
	if i < 0 || i >= len(toks) {
		return token.EOF
	}
	return toks[i].Type
}

// templateNames returns the free names read inside the {} segments of an
// f-string.
func templateNames(lit string) []string {
	var names []string
	for {
		open := strings.IndexByte(lit, '{')
		if open < 0 {
			return names
		}
		end := strings.IndexByte(lit[open:], '}')
		if end < 0 {
			return names
		}
		names = append(names, freeNames(lit[open+1:open+end])...)
		lit = lit[open+end+1:]
	}
}

// localNames returns the names src declares: := targets, function names
// and parameters, var and const declarations, and imports.
func localNames(src string, toks []token.Token) map[string]bool {
	locals := map[string]bool{}
	for _, m := range localDecl.FindAllStringSubmatch(src, -1) {
		for _, id := range identRe.FindAllString(m[1], -1) {
			locals[id] = true
		}
	}
	for _, m := range funcDecl.FindAllStringSubmatch(src, -1) {
		if m[1] != "" {
			locals[m[1]] = true
		}
		for _, id := range identRe.FindAllString(m[2], -1) {
			locals[id] = true
		}
	}
	for i, tok := range toks {
		if tok.Type != token.IDENT {
			continue
		}
		switch typeAt(toks, i-1) {
		case token.VAR, token.CONST, token.IMPORT, token.FROM:
			locals[tok.Literal] = true
		}
	}
	return locals
}

// dollarPrefix replaces the leading $ of scope names such as $item, which
// are not valid risor identifiers.
const dollarPrefix = "__"

func rewriteDollar(src string) string {
	var b strings.Builder
	quote := rune(0)
	rs := []rune(src)
	for i, r := range rs {
		switch {
		case quote != 0:
			if r == quote && (i == 0 || rs[i-1] != '\\') {
				quote = 0
			}
		case r == '"' || r == '\'' || r == '`':
			quote = r
		case r == '$' && i+1 < len(rs) && isIdentStart(rs[i+1]):
			b.WriteString(dollarPrefix)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func scopeNameOf(name string) string {
	if strings.HasPrefix(name, dollarPrefix) {
		return "$" + strings.TrimPrefix(name, dollarPrefix)
	}
	return name
}

// freeNames returns the identifiers a script reads that it does not
// declare itself. Attribute names after a dot and string contents are
// skipped.
func freeNames(src string) []string {
	locals := localNames(src, nil)

	seen := map[string]bool{}
	rs := []rune(src)
	quote := rune(0)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if quote != 0 {
			if r == quote && rs[i-1] != '\\' {
				quote = 0
			}
			continue
		}
		if r == '"' || r == '\'' || r == '`' {
			quote = r
			continue
		}
		if !isIdentStart(r) {
			continue
		}
		start := i
		for i < len(rs) && isIdentPart(rs[i]) {
			i++
		}
		name := string(rs[start:i])
		i--
		if afterDot(rs, start) || reserved[name] || locals[name] {
			continue
		}
		seen[name] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func afterDot(rs []rune, i int) bool {
	for j := i - 1; j >= 0; j-- {
		switch rs[j] {
		case ' ', '\t', '\n', '\r':
			continue
		case '.':
			return true
		}
		return false
	}
	return false
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}
