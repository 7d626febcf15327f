// Package config handles configuration loading for the engine.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sentinel-engine/internal/audit"
	"sentinel-engine/internal/detect"
)

// Config holds the complete engine configuration.
type Config struct {
	Buffer    BufferConfig   `yaml:"buffer"`
	Detection detect.Config  `yaml:"detection"`
	Recount   RecountConfig  `yaml:"recount"`
	Audit     AuditConfig    `yaml:"audit"`
	Cooldown  CooldownConfig `yaml:"cooldown"`
	Logging   LoggingConfig  `yaml:"logging"`
	RuleFiles []string       `yaml:"rule_files"`
}

// BufferConfig holds event buffer retention settings.
type BufferConfig struct {
	Retention        time.Duration `yaml:"retention"`
	EvictionInterval time.Duration `yaml:"eviction_interval"`
}

// RecountConfig holds active-threat recount settings.
type RecountConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// AuditConfig selects and configures the audit sink.
type AuditConfig struct {
	// Sink is "log" or "kafka".
	Sink  string            `yaml:"sink"`
	Kafka audit.KafkaConfig `yaml:"kafka"`
}

// CooldownConfig selects and configures the alert cooldown store.
type CooldownConfig struct {
	// Store is "memory" or "redis".
	Store string      `yaml:"store"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig mirrors the alerting package Redis settings so the YAML tree
// stays self-contained.
type RedisConfig struct {
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	KeyPrefix  string `yaml:"key_prefix"`
	TLSEnabled bool   `yaml:"tls_enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Buffer: BufferConfig{
			Retention:        24 * time.Hour,
			EvictionInterval: 5 * time.Minute,
		},
		Detection: detect.DefaultConfig(),
		Recount: RecountConfig{
			Interval: time.Minute,
		},
		Audit: AuditConfig{
			Sink:  "log",
			Kafka: audit.DefaultKafkaConfig(),
		},
		Cooldown: CooldownConfig{
			Store: "memory",
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "sentinel:cooldown:",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a file or returns defaults. An empty path
// falls back to SENTINEL_CONFIG_PATH, then configs/config.yaml.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("SENTINEL_CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("SENTINEL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("SENTINEL_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
	if sink := os.Getenv("SENTINEL_AUDIT_SINK"); sink != "" {
		c.Audit.Sink = sink
	}
	if brokers := os.Getenv("SENTINEL_KAFKA_BROKERS"); brokers != "" {
		c.Audit.Kafka.Brokers = splitAndTrim(brokers, ",")
	}
	if store := os.Getenv("SENTINEL_COOLDOWN_STORE"); store != "" {
		c.Cooldown.Store = store
	}
	if addr := os.Getenv("SENTINEL_REDIS_ADDR"); addr != "" {
		c.Cooldown.Redis.Addr = addr
	}
	if pass := os.Getenv("SENTINEL_REDIS_PASSWORD"); pass != "" {
		c.Cooldown.Redis.Password = pass
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Buffer.Retention <= 0 {
		return fmt.Errorf("buffer retention must be positive")
	}
	if c.Buffer.EvictionInterval <= 0 {
		return fmt.Errorf("buffer eviction_interval must be positive")
	}
	if c.Recount.Interval <= 0 {
		return fmt.Errorf("recount interval must be positive")
	}

	switch c.Audit.Sink {
	case "log":
	case "kafka":
		if err := c.Audit.Kafka.Validate(); err != nil {
			return fmt.Errorf("kafka audit sink: %w", err)
		}
	default:
		return fmt.Errorf("unknown audit sink: %q", c.Audit.Sink)
	}

	switch c.Cooldown.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cooldown store: %q", c.Cooldown.Store)
	}

	return nil
}

// splitAndTrim splits a string by separator and trims whitespace from each
// non-empty part.
func splitAndTrim(s, sep string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
