// Command xvm renders and serves component bundles.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/xvm/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	out := newPrinter(os.Stdout)
	if !out.color {
		errors.DisableColors()
	}
	if err := newRootCmd(out).Execute(); err != nil {
		report(os.Stderr, out, err)
		os.Exit(1)
	}
}

// report writes a command's final error: a JSON object when log.format
// is json, a single line when w is not a terminal.
func report(w io.Writer, out *printer, err error) {
	asJSON := strings.EqualFold(out.errFormat, "json")
	var xe *errors.XError
	if !errors.As(err, &xe) {
		if !asJSON {
			out.errorMsg(w, "%s", err)
			return
		}
		xe = &errors.XError{Message: err.Error()}
	}
	switch {
	case asJSON:
		fmt.Fprintln(w, xe.FormatJSON())
	case !isTerminal(w):
		fmt.Fprintln(w, xe.FormatCompact())
	default:
		fmt.Fprintln(w, xe.Format())
	}
}

func newRootCmd(out *printer) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "xvm",
		Short: "Component runtime for declarative UI bundles",
		Long: `xvm runs component bundles: YAML files declaring data, props,
computed values, methods and a template.

Pages built from a bundle emit a stream of render commands. Use
"xvm render" to inspect that stream, or "xvm serve" to host pages
for websocket clients.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: ./xvm.yaml)")

	root.AddCommand(
		renderCmd(out, &configPath),
		serveCmd(out, &configPath),
		versionCmd(out),
	)
	return root
}
