package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/vango-dev/xvm/pkg/dom"
)

var (
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleHeader  = lipgloss.NewStyle().Bold(true)

	opStyles = map[dom.Op]lipgloss.Style{
		dom.OpCreate:       lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		dom.OpAddChild:     lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		dom.OpMoveChild:    lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
		dom.OpRemoveChild:  lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		dom.OpUpdateAttr:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		dom.OpUpdateStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		dom.OpCreateFinish: styleMuted,
		dom.OpUpdateFinish: styleMuted,
	}
)

// printer writes CLI output, styled only on a terminal.
type printer struct {
	w     io.Writer
	color bool

	// errFormat is the loaded log.format, used for the final error.
	errFormat string
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, color: isTerminal(w)}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func (p *printer) render(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p *printer) success(format string, args ...any) {
	fmt.Fprintf(p.w, "%s %s\n", p.render(styleSuccess, "✓"), fmt.Sprintf(format, args...))
}

func (p *printer) info(format string, args ...any) {
	fmt.Fprintf(p.w, "  %s\n", fmt.Sprintf(format, args...))
}

func (p *printer) warn(format string, args ...any) {
	fmt.Fprintf(p.w, "%s %s\n", p.render(styleWarn, "⚠"), fmt.Sprintf(format, args...))
}

func (p *printer) errorMsg(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", p.render(styleError, "✗"), fmt.Sprintf(format, args...))
}

func (p *printer) header(text string) {
	fmt.Fprintln(p.w, p.render(styleHeader, text))
}

// batch prints one committed command batch.
func (p *printer) batch(n int, docID string, cmds []dom.Command) {
	p.header(fmt.Sprintf("batch %d", n) + p.render(styleMuted, fmt.Sprintf(" (%s, %d commands)", docID, len(cmds))))
	for _, c := range cmds {
		fmt.Fprintf(p.w, "  %s\n", p.render(opStyles[c.Op], c.String()))
	}
}
