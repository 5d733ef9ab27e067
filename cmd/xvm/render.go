package main

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vango-dev/xvm/internal/config"
	"github.com/vango-dev/xvm/internal/errors"
	"github.com/vango-dev/xvm/pkg/dom"
	"github.com/vango-dev/xvm/pkg/sched"
	"github.com/vango-dev/xvm/pkg/vm"
)

type renderOptions struct {
	component string
	data      string
	events    []string
	verbose   bool
}

func renderCmd(out *printer, configPath *string) *cobra.Command {
	var opts renderOptions

	cmd := &cobra.Command{
		Use:   "render <bundle.yaml> [more bundles...]",
		Short: "Print the render commands of a component",
		Long: `Bootstrap a component from its bundle file and print every command
batch the page commits.

The first bundle is rendered unless --component names another one.
Events are fired in order after the initial build, each followed by a
flush:

  xvm render counter.yaml --event 2:tap --event 2:tap`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			out.errFormat = cfg.Log.Format
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			p := &printer{w: cmd.OutOrStdout(), color: out.color}
			return runRender(p, cfg, logger, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.component, "component", "", "component to render (default: first bundle)")
	cmd.Flags().StringVar(&opts.data, "data", "", "external data for the root as a JSON object")
	cmd.Flags().StringArrayVarP(&opts.events, "event", "e", nil, "fire an event as <ref>:<type>[:<json detail>]")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")

	return cmd
}

func runRender(out *printer, cfg *config.Config, logger *slog.Logger, paths []string, opts renderOptions) error {
	app, names, err := loadApp(cfg, logger, paths)
	if err != nil {
		return err
	}
	name := names[0]
	if opts.component != "" {
		name = opts.component
	}

	var data map[string]any
	if opts.data != "" {
		if err := json.Unmarshal([]byte(opts.data), &data); err != nil {
			return errors.FromError(err, "E223").WithInfo("--data")
		}
	}

	events := make([]hostEvent, 0, len(opts.events))
	for _, s := range opts.events {
		ev, err := parseEvent(s)
		if err != nil {
			return err
		}
		events = append(events, ev)
	}

	rec := &dom.Recorder{}
	d := &sched.Manual{}
	page, err := app.Bootstrap(name, vm.BootstrapOptions{Sink: rec, Deferrer: d, Data: data})
	if page != nil {
		defer page.Destroy()
	}
	if err != nil {
		return err
	}
	page.Show()
	d.Drain()

	for _, ev := range events {
		if err := page.FireEvent(ev.ref, ev.typ, ev.detail); err != nil {
			return err
		}
		d.Drain()
	}

	for i, batch := range rec.Batches {
		out.batch(i+1, page.ID(), batch)
	}
	out.success("%s: %d batches, %d commands", name, len(rec.Batches), len(rec.All()))
	return nil
}

// hostEvent is an event given on the command line.
type hostEvent struct {
	ref    int
	typ    string
	detail any
}

func parseEvent(s string) (hostEvent, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || parts[1] == "" {
		return hostEvent{}, errors.New("E223").WithInfo(s).
			WithDetail("events are written <ref>:<type>[:<json detail>]")
	}
	ref, err := strconv.Atoi(parts[0])
	if err != nil {
		return hostEvent{}, errors.FromError(err, "E223").WithInfo(s)
	}
	ev := hostEvent{ref: ref, typ: parts[1]}
	if len(parts) == 3 {
		if err := json.Unmarshal([]byte(parts[2]), &ev.detail); err != nil {
			return hostEvent{}, errors.FromError(err, "E223").WithInfo(s)
		}
	}
	return ev, nil
}
