package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ahrav/go-reward/infrastructure/algebra"
	"github.com/ahrav/go-reward/infrastructure/audit"
	"github.com/ahrav/go-reward/infrastructure/llm"
	"github.com/ahrav/go-reward/infrastructure/middleware"
	"github.com/ahrav/go-reward/internal/application"
	"github.com/ahrav/go-reward/internal/observability"
	"github.com/ahrav/go-reward/internal/ports"
)

// Settings keys. Each is also a flag and a REWARD_* environment variable.
const (
	keyConfig    = "config"
	keyLogLevel  = "log-level"
	keyLogFormat = "log-format"
	keyLogDir    = "log-dir"
	keyListen    = "listen"
	keyWorkers   = "workers"
)

// cli carries the process settings shared by every subcommand.
type cli struct {
	v      *viper.Viper
	stderr io.Writer
}

// engine is a fully wired reward system.
type engine struct {
	system  *application.RewardSystem
	metrics *middleware.PrometheusMetrics
	logger  *observability.Logger
}

func newRootCommand() *cobra.Command {
	c := &cli{v: viper.New()}
	c.v.SetEnvPrefix("REWARD")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root := &cobra.Command{
		Use:          "rewardctl",
		Short:        "Score model responses against reference answers",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c.stderr = cmd.ErrOrStderr()
			return c.v.BindPFlags(cmd.Flags())
		},
	}

	pf := root.PersistentFlags()
	pf.StringP(keyConfig, "c", "reward.yaml", "reward system configuration file")
	pf.String(keyLogLevel, "info", "log level (debug, info, warn, error)")
	pf.String(keyLogFormat, "text", "log format (text, json)")
	pf.String(keyLogDir, "", "override reward_log_dir from the configuration")
	pf.Int(keyWorkers, 0, "override max_workers from the configuration")

	root.AddCommand(
		newScoreCommand(c),
		newExtractCommand(c),
		newKindsCommand(c),
		newServeCommand(c),
	)
	return root
}

func (c *cli) logger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:  c.v.GetString(keyLogLevel),
		Format: c.v.GetString(keyLogFormat),
		Output: c.stderr,
	})
}

// loadConfig reads the configuration file and applies the process-level
// overrides.
func (c *cli) loadConfig() (*application.RewardSystemConfig, error) {
	path := c.v.GetString(keyConfig)
	cfg, err := application.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	if dir := c.v.GetString(keyLogDir); dir != "" {
		cfg.RewardLogDir = dir
	}
	if n := c.v.GetInt(keyWorkers); n > 0 {
		cfg.MaxWorkers = n
	}
	return cfg, nil
}

// build wires the reward system with its judge client, algebra evaluator,
// audit sink and Prometheus collector.
func (c *cli) build() (*engine, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := c.logger()
	metrics := middleware.NewPrometheusMetrics(prometheus.NewRegistry())

	registry := application.NewVerifierRegistry(cfg, ports.VerifierDeps{
		Judge:   llm.NewJudgeClient(cfg.JudgeClient, metrics, logger),
		Algebra: algebra.NewEvaluator(),
		Logger:  logger.Slog(),
	})
	system, err := application.NewRewardSystem(cfg, application.RewardSystemDeps{
		Registry: registry,
		Audit:    audit.NewJSONLSink(cfg.RewardLogDir),
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("reward system ready",
		"config", c.v.GetString(keyConfig),
		"datasources", len(cfg.DatasourceRewardConfigMapping),
		"max_workers", cfg.MaxWorkers,
		"judge_client", cfg.JudgeClient.String(),
	)
	return &engine{system: system, metrics: metrics, logger: logger}, nil
}
