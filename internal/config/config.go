package config

import (
	stderrors "errors"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/vango-dev/xvm/internal/errors"
)

const (
	// ConfigName is the base name of the configuration file.
	ConfigName = "xvm"

	// EnvPrefix prefixes environment overrides.
	EnvPrefix = "XVM"

	// DefaultFlushWarnThreshold is the task count after which a flush warns
	// about a possible update loop.
	DefaultFlushWarnThreshold = 20000

	// DefaultAddr is the default server listen address.
	DefaultAddr = ":7070"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Config is the complete runtime configuration.
type Config struct {
	// Debug enables debug logging regardless of Log.Level.
	Debug bool `mapstructure:"debug"`

	Log       LogConfig       `mapstructure:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`

	// Bundles are component bundle files loaded at startup.
	Bundles []string `mapstructure:"bundles"`

	path string
}

// LogConfig configures the slog handler.
type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `mapstructure:"level"`

	// Format is text or json.
	Format string `mapstructure:"format"`
}

// SchedulerConfig configures page executors.
type SchedulerConfig struct {
	FlushWarnThreshold int `mapstructure:"flush_warn_threshold"`
}

// ServerConfig configures the websocket host server.
type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	WSPath      string `mapstructure:"ws_path"`
	MetricsPath string `mapstructure:"metrics_path"`

	// AllowedOrigins restricts websocket upgrades. Empty allows same-origin
	// requests only.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// TrustedProxies are IPs or CIDRs whose forwarding headers are
	// believed when logging a session's remote address.
	TrustedProxies []string `mapstructure:"trusted_proxies"`

	// QueueSize bounds the work queued per session.
	QueueSize int `mapstructure:"queue_size"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("scheduler.flush_warn_threshold", DefaultFlushWarnThreshold)
	v.SetDefault("server.addr", DefaultAddr)
	v.SetDefault("server.ws_path", "/ws")
	v.SetDefault("server.metrics_path", "/metrics")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.queue_size", 256)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "xvm")
	v.SetDefault("bundles", []string{})
}

// New returns the default configuration.
func New() *Config {
	v := viper.New()
	setDefaults(v)
	c := &Config{}
	_ = v.Unmarshal(c)
	return c
}

// Load reads the configuration file at path, or xvm.yaml / xvm.json in
// the working directory when path is empty, and applies environment
// overrides. A missing file in the working directory is not an error; a
// missing explicit path is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(ConfigName)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !stderrors.As(err, &notFound) {
			return nil, errors.New("E221").WithDetailf("config %q", path).Wrap(err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, errors.New("E220").Wrap(err)
	}
	c.path = v.ConfigFileUsed()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Path returns the file the configuration was read from, if any.
func (c *Config) Path() string {
	return c.path
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch {
	case c.Scheduler.FlushWarnThreshold <= 0:
		return errors.New("E220").
			WithDetailf("scheduler.flush_warn_threshold must be positive, got %d", c.Scheduler.FlushWarnThreshold)
	case !slices.Contains(logLevels, strings.ToLower(c.Log.Level)):
		return errors.New("E220").
			WithDetailf("unknown log.level %q", c.Log.Level).
			WithSuggestion(errors.Suggest(c.Log.Level, logLevels))
	case !slices.Contains(logFormats, strings.ToLower(c.Log.Format)):
		return errors.New("E220").
			WithDetailf("unknown log.format %q", c.Log.Format).
			WithSuggestion(errors.Suggest(c.Log.Format, logFormats))
	case c.Server.QueueSize <= 0:
		return errors.New("E220").WithDetailf("server.queue_size must be positive, got %d", c.Server.QueueSize)
	case !strings.HasPrefix(c.Server.WSPath, "/"):
		return errors.New("E220").WithDetailf("server.ws_path %q must start with /", c.Server.WSPath)
	case !strings.HasPrefix(c.Server.MetricsPath, "/"):
		return errors.New("E220").WithDetailf("server.metrics_path %q must start with /", c.Server.MetricsPath)
	}
	return nil
}

// Level returns the configured slog level. Debug forces debug.
func (c *Config) Level() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Logger builds a logger writing to w in the configured format.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.Level()}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
