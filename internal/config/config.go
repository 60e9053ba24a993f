// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Engine    EngineConfig    `mapstructure:"engine" yaml:"engine"`
	Watermark WatermarkConfig `mapstructure:"watermark" yaml:"watermark"`
	Shield    ShieldConfig    `mapstructure:"shield" yaml:"shield"`
	Extractor ExtractorConfig `mapstructure:"extractor" yaml:"extractor"`
	Forensics ForensicsConfig `mapstructure:"forensics" yaml:"forensics"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// EngineConfig configures the core task processing engine.
type EngineConfig struct {
	QueueSize          int           `mapstructure:"queue_size" yaml:"queue_size"`
	WorkerConcurrency  int           `mapstructure:"worker_concurrency" yaml:"worker_concurrency"`
	DefaultTaskTimeout time.Duration `mapstructure:"default_task_timeout" yaml:"default_task_timeout"`
	// TasksPerSecond throttles task dispatch; zero disables the limiter.
	TasksPerSecond float64 `mapstructure:"tasks_per_second" yaml:"tasks_per_second"`
}

// WatermarkConfig carries the embed defaults.
type WatermarkConfig struct {
	DefaultStrength int `mapstructure:"default_strength" yaml:"default_strength"`
}

// ShieldConfig carries the protection defaults.
type ShieldConfig struct {
	DefaultLevel int `mapstructure:"default_level" yaml:"default_level"`
}

// ExtractorConfig sizes the feature-extractor network.
type ExtractorConfig struct {
	Seed          int64 `mapstructure:"seed" yaml:"seed"`
	InputSize     int   `mapstructure:"input_size" yaml:"input_size"`
	PatchSize     int   `mapstructure:"patch_size" yaml:"patch_size"`
	HiddenSize    int   `mapstructure:"hidden_size" yaml:"hidden_size"`
	NumClasses    int   `mapstructure:"num_classes" yaml:"num_classes"`
	MaxConcurrent int   `mapstructure:"max_concurrent" yaml:"max_concurrent"`
}

// ForensicsConfig carries the analyzer defaults.
type ForensicsConfig struct {
	// ClaimedOwner, when set, is compared against any recovered payload.
	ClaimedOwner string `mapstructure:"claimed_owner" yaml:"claimed_owner"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pngprotect")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Engine --
	v.SetDefault("engine.queue_size", 256)
	v.SetDefault("engine.worker_concurrency", 4)
	v.SetDefault("engine.default_task_timeout", "5m")
	v.SetDefault("engine.tasks_per_second", 0.0)

	// -- Watermark --
	v.SetDefault("watermark.default_strength", 5)

	// -- Shield --
	v.SetDefault("shield.default_level", 50)

	// -- Extractor --
	v.SetDefault("extractor.seed", 0x504E4750)
	v.SetDefault("extractor.input_size", 224)
	v.SetDefault("extractor.patch_size", 16)
	v.SetDefault("extractor.hidden_size", 64)
	v.SetDefault("extractor.num_classes", 32)
	v.SetDefault("extractor.max_concurrent", 4)
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with the defaults above.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Engine.WorkerConcurrency <= 0 {
		return fmt.Errorf("engine.worker_concurrency must be a positive integer")
	}
	if c.Engine.QueueSize <= 0 {
		return fmt.Errorf("engine.queue_size must be a positive integer")
	}
	if c.Watermark.DefaultStrength < 1 || c.Watermark.DefaultStrength > 10 {
		return fmt.Errorf("watermark.default_strength must be in [1,10]")
	}
	if c.Shield.DefaultLevel < 0 || c.Shield.DefaultLevel > 100 {
		return fmt.Errorf("shield.default_level must be in [0,100]")
	}
	if c.Extractor.InputSize <= 0 || c.Extractor.PatchSize <= 0 ||
		c.Extractor.InputSize%c.Extractor.PatchSize != 0 {
		return fmt.Errorf("extractor.input_size must be a positive multiple of extractor.patch_size")
	}
	if c.Extractor.NumClasses < 2 {
		return fmt.Errorf("extractor.num_classes must be at least 2")
	}
	return nil
}
