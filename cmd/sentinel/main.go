// Package main provides the sentinel engine entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"sentinel-engine/internal/alerting"
	"sentinel-engine/internal/audit"
	"sentinel-engine/internal/config"
	"sentinel-engine/internal/engine"
)

var version = "dev"

func main() {
	var (
		showVersion bool
		configPath  string
		ruleFiles   string
	)

	flag.BoolVar(&showVersion, "version", false, "Show version and exit")
	flag.BoolVar(&showVersion, "v", false, "Show version and exit (shorthand)")
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&ruleFiles, "rules", "", "Comma-separated alert rule files, in addition to the config's rule_files")
	flag.Parse()

	if showVersion {
		fmt.Printf("sentinel %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	cfg.RuleFiles = append(cfg.RuleFiles, splitRuleFlag(ruleFiles)...)

	setupLogging(cfg.Logging)

	if err := run(cfg); err != nil {
		slog.Error("engine exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	sink, err := buildSink(cfg)
	if err != nil {
		return err
	}

	var opts []engine.Option
	if cfg.Cooldown.Store == "redis" {
		store, err := alerting.NewRedisCooldownStore(alerting.RedisConfig{
			Addr:       cfg.Cooldown.Redis.Addr,
			Password:   cfg.Cooldown.Redis.Password,
			DB:         cfg.Cooldown.Redis.DB,
			KeyPrefix:  cfg.Cooldown.Redis.KeyPrefix,
			TLSEnabled: cfg.Cooldown.Redis.TLSEnabled,
		})
		if err != nil {
			return fmt.Errorf("redis cooldown store: %w", err)
		}
		defer store.Close()
		opts = append(opts, engine.WithCooldownStore(store))
	}

	eng, err := engine.New(engine.Config{
		BufferRetention:  cfg.Buffer.Retention,
		EvictionInterval: cfg.Buffer.EvictionInterval,
		RecountInterval:  cfg.Recount.Interval,
		Detection:        cfg.Detection,
	}, sink, opts...)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	if err := loadRuleFiles(eng, cfg.RuleFiles); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng.Start(ctx)
	defer eng.Stop()

	slog.Info("sentinel engine running", "version", version)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	slog.Info("shutting down", "signal", sig)
	return nil
}

func buildSink(cfg *config.Config) (audit.Sink, error) {
	switch cfg.Audit.Sink {
	case "kafka":
		return audit.NewKafkaSink(cfg.Audit.Kafka, slog.Default())
	default:
		return audit.NewLogSink(slog.Default()), nil
	}
}

func loadRuleFiles(eng *engine.Engine, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read rule file %s: %w", path, err)
		}
		rules, err := alerting.ParseRules(data)
		if err != nil {
			return fmt.Errorf("rule file %s: %w", path, err)
		}
		for _, rule := range rules {
			if err := eng.AddAlertRule(rule); err != nil {
				return fmt.Errorf("rule file %s: %w", path, err)
			}
		}
		slog.Info("loaded rule file", "path", path, "rules", len(rules))
	}
	return nil
}

// splitRuleFlag turns the -rules flag value into a path list.
func splitRuleFlag(s string) []string {
	var paths []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			paths = append(paths, trimmed)
		}
	}
	return paths
}

func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
