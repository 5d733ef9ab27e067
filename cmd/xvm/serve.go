package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vango-dev/xvm/internal/config"
	"github.com/vango-dev/xvm/pkg/dom"
	"github.com/vango-dev/xvm/pkg/metrics"
	"github.com/vango-dev/xvm/pkg/sched"
	"github.com/vango-dev/xvm/pkg/server"
	"github.com/vango-dev/xvm/pkg/vm"
)

func serveCmd(out *printer, configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve [bundle.yaml...]",
		Short: "Host components for websocket clients",
		Long: `Start the websocket host server.

Each bundle is served at <ws_path>/<component>. Bundles come from the
arguments, or from the 'bundles' list in the config file when none are
given. Prometheus metrics are exposed at the configured metrics path.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			out.errFormat = cfg.Log.Format
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if len(args) > 0 {
				cfg.Bundles = args
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, out, cfg)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides server.addr)")

	return cmd
}

func runServe(ctx context.Context, out *printer, cfg *config.Config) error {
	logger := cfg.Logger(os.Stderr)

	var (
		appOpts []vm.Option
		srvOpts = []server.Option{server.WithLogger(logger)}
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		c := metrics.NewCollector(reg, metrics.WithNamespace(cfg.Metrics.Namespace))
		appOpts = append(appOpts,
			vm.WithExecutorOptions(sched.WithObserver(c)),
			vm.WithDocumentOptions(dom.WithObserver(c)),
			vm.WithErrorHandler(func(err error) {
				c.RecordError(err)
				logger.Error("unhandled error", "error", err)
			}),
		)
		srvOpts = append(srvOpts, server.WithGatherer(reg), server.WithSessionObserver(c))
	}

	app, names, err := loadApp(cfg, logger, cfg.Bundles, appOpts...)
	if err != nil {
		return err
	}

	srv := server.New(app, cfg.Server, srvOpts...)
	if p := cfg.Path(); p != "" {
		out.info("config: %s", p)
	}
	for _, name := range names {
		out.info("component %s at %s/%s", name, cfg.Server.WSPath, name)
	}
	out.success("listening on %s", cfg.Server.Addr)
	return srv.ListenAndServe(ctx)
}
