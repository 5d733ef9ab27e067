package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/xvm/internal/errors"
	"github.com/vango-dev/xvm/pkg/dom"
)

// Config configures a Collector.
type Config struct {
	// Namespace is the metrics namespace (default: "xvm").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for flush duration.
	// Default: prometheus.DefBuckets
	Buckets []float64
}

// Option configures a Collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "xvm",
		Buckets:   prometheus.DefBuckets,
	}
}

// Collector records runtime statistics. It implements sched.Observer and
// dom.Observer and is safe for concurrent use by many pages.
type Collector struct {
	flushes       *prometheus.CounterVec
	tasks         prometheus.Counter
	flushDuration prometheus.Histogram
	commands      *prometheus.CounterVec
	errors        *prometheus.CounterVec
	sessions      prometheus.Gauge
}

// NewCollector creates the metrics and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer, opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flushes_total",
			Help:        "Total number of executor flushes",
			ConstLabels: config.ConstLabels,
		}, []string{"status"}),

		tasks: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "tasks_total",
			Help:        "Total number of tasks run by flushes",
			ConstLabels: config.ConstLabels,
		}),

		flushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "flush_duration_seconds",
			Help:        "Flush duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "commands_total",
			Help:        "Total number of committed render commands by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "errors_total",
			Help:        "Total number of reported errors by category",
			ConstLabels: config.ConstLabels,
		}, []string{"category"}),

		sessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of connected host sessions",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// FlushCompleted implements sched.Observer.
func (c *Collector) FlushCompleted(tasks int, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.flushes.WithLabelValues(status).Inc()
	c.tasks.Add(float64(tasks))
	c.flushDuration.Observe(elapsed.Seconds())
}

// CommandsCommitted implements dom.Observer.
func (c *Collector) CommandsCommitted(_ string, cmds []dom.Command) {
	for _, cmd := range cmds {
		c.commands.WithLabelValues(cmd.Op.String()).Inc()
	}
}

// RecordError counts err under its category. Errors without one count as
// "internal", which keeps the label set bounded.
func (c *Collector) RecordError(err error) {
	if err == nil {
		return
	}
	category := string(errors.CategoryOf(err))
	if category == "" {
		category = "internal"
	}
	c.errors.WithLabelValues(category).Inc()
}

// SessionOpened records a connected host session.
func (c *Collector) SessionOpened() {
	c.sessions.Inc()
}

// SessionClosed records a disconnected host session.
func (c *Collector) SessionClosed() {
	c.sessions.Dec()
}
