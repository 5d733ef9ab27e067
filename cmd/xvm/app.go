package main

import (
	"log/slog"

	"github.com/vango-dev/xvm/internal/config"
	"github.com/vango-dev/xvm/internal/errors"
	"github.com/vango-dev/xvm/pkg/sandbox"
	"github.com/vango-dev/xvm/pkg/sched"
	"github.com/vango-dev/xvm/pkg/template"
	"github.com/vango-dev/xvm/pkg/vm"
)

// loadApp builds an app with every bundle in paths defined under its
// bundle name. Names are returned in load order.
func loadApp(cfg *config.Config, logger *slog.Logger, paths []string, opts ...vm.Option) (*vm.App, []string, error) {
	if len(paths) == 0 {
		return nil, nil, errors.New("E222").
			WithDetail("no component bundles given").
			WithSuggestion("Pass bundle files as arguments or list them under 'bundles' in xvm.yaml")
	}

	base := []vm.Option{
		vm.WithLogger(logger),
		vm.WithExecutorOptions(sched.WithWarnThreshold(cfg.Scheduler.FlushWarnThreshold)),
	}
	app := vm.NewApp(append(base, opts...)...)
	sb := sandbox.New(sandbox.WithLogger(logger))

	names := make([]string, 0, len(paths))
	for _, path := range paths {
		b, err := template.LoadBundleFile(path, sb)
		if err != nil {
			return nil, nil, err
		}
		app.Define(b.Name, vm.FromBundle(b))
		names = append(names, b.Name)
		logger.Debug("bundle loaded", "component", b.Name, "path", path)
	}
	return app, names, nil
}
