// Package config loads settings for the forkjoin command from defaults, an
// optional config file and FORKJOIN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. FORKJOIN_THREADS.
const EnvPrefix = "FORKJOIN"

// Config is the full command configuration.
type Config struct {
	// Threads is the worker count for the default pool; -1 means one per GOMAXPROCS.
	Threads int           `mapstructure:"threads"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Sum     SumConfig     `mapstructure:"sum"`
	Grid    GridConfig    `mapstructure:"grid"`
	Nested  NestedConfig  `mapstructure:"nested"`
	History HistoryConfig `mapstructure:"history"`
}

// LoggingConfig selects the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr         string        `mapstructure:"addr"`
	Namespace    string        `mapstructure:"namespace"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// TracingConfig controls the stdout span exporter.
type TracingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Output  string `mapstructure:"output"` // file path; empty means stdout
}

// SumConfig parameterizes the sum-of-squares workload.
type SumConfig struct {
	N         int `mapstructure:"n"`
	BlockSize int `mapstructure:"block_size"`
}

// GridConfig parameterizes the nested grid reduction.
type GridConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// NestedConfig parameterizes the deep nesting probe.
type NestedConfig struct {
	Depth  int `mapstructure:"depth"`
	Fanout int `mapstructure:"fanout"`
}

// HistoryConfig sizes the per-pool task history.
type HistoryConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Threads: -1,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Namespace:    "forkjoin",
			PollInterval: time.Second,
		},
		Sum: SumConfig{
			N:         1 << 20,
			BlockSize: 4096,
		},
		Grid: GridConfig{
			Width:  1024,
			Height: 1024,
		},
		Nested: NestedConfig{
			Depth:  4,
			Fanout: 4,
		},
		History: HistoryConfig{
			Capacity: 100,
		},
	}
}

// SetDefaults registers every default value with v so that environment
// variables can override keys that never appear in a file.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("threads", defaults.Threads)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)

	v.SetDefault("metrics.addr", defaults.Metrics.Addr)
	v.SetDefault("metrics.namespace", defaults.Metrics.Namespace)
	v.SetDefault("metrics.poll_interval", defaults.Metrics.PollInterval)

	v.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	v.SetDefault("tracing.output", defaults.Tracing.Output)

	v.SetDefault("sum.n", defaults.Sum.N)
	v.SetDefault("sum.block_size", defaults.Sum.BlockSize)

	v.SetDefault("grid.width", defaults.Grid.Width)
	v.SetDefault("grid.height", defaults.Grid.Height)

	v.SetDefault("nested.depth", defaults.Nested.Depth)
	v.SetDefault("nested.fanout", defaults.Nested.Fanout)

	v.SetDefault("history.capacity", defaults.History.Capacity)
}

// New returns a viper instance with defaults and environment overrides
// installed. When configFile is not empty it is read as well.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}
	return v, nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, errors.New("config: nil viper instance")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}
