// Package config loads listfresh settings from defaults, an optional config
// file, LISTFRESH_* environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable. Key dots become
// underscores: upstream.service is read from LISTFRESH_UPSTREAM_SERVICE.
const EnvPrefix = "LISTFRESH"

// Config holds all configuration options for listfresh.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
	Debug    bool           `mapstructure:"debug"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Events   EventsConfig   `mapstructure:"events"`
}

type HTTPConfig struct {
	Addr       string `mapstructure:"addr"`
	CORSOrigin string `mapstructure:"cors_origin"`
}

type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// UpstreamConfig points at the AppView serving the XRPC queries.
type UpstreamConfig struct {
	Service   string        `mapstructure:"service"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the metrics listener
}

type TracingConfig struct {
	Exporter     string  `mapstructure:"exporter"` // none, stdout or otlp
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// EventsConfig selects the lookup event sink. ClickHouse wins when both DSNs
// are set; with neither, events go to the log.
type EventsConfig struct {
	ClickHouseDSN string `mapstructure:"clickhouse_dsn"`
	PostgresDSN   string `mapstructure:"postgres_dsn"`
}

// LogLevel is the effective log level. Debug forces "debug".
func (c Config) LogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.Log.Level
}

// New returns a viper instance with every key defaulted and environment
// lookup enabled. version feeds the default User-Agent.
func New(version string) *viper.Viper {
	v := viper.New()
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origin", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("debug", false)
	v.SetDefault("upstream.service", "https://public.api.bsky.app")
	v.SetDefault("upstream.timeout", 10*time.Second)
	v.SetDefault("upstream.user_agent", "listfresh/"+version)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("events.clickhouse_dsn", "")
	v.SetDefault("events.postgres_dsn", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	return v
}

// Load reads path (when non-empty) into v and decodes the merged settings.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if c.Upstream.Service == "" {
		errs = append(errs, errors.New("upstream.service is required"))
	}
	if c.Upstream.Timeout < 0 {
		errs = append(errs, errors.New("upstream.timeout must not be negative"))
	}
	switch c.Tracing.Exporter {
	case "", "none", "stdout", "otlp":
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter %q is not one of none, stdout, otlp", c.Tracing.Exporter))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, errors.New("tracing.sample_rate must be within [0, 1]"))
	}
	return errors.Join(errs...)
}
