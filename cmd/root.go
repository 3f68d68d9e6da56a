package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agent462/drove/internal/config"
	"github.com/agent462/drove/internal/logging"
	"github.com/agent462/drove/internal/telemetry"
)

var (
	cfgFile      string
	verbose      bool
	log          *zap.Logger
	otelShutdown func(context.Context) error
)

var rootCmd = &cobra.Command{
	Use:   "drove",
	Short: "Run a list of commands on every host of a group over SSH",
	Long: `drove connects to every host in a configured group, runs a list of
commands on each host in order, and prints a table of the results.

Hosts run in parallel. Failed commands are retried, and one host failing
never stops the others. Credentials come from SSH_USERNAME and SSH_PASSWORD.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if log != nil {
			_ = log.Sync()
		}
		if otelShutdown != nil {
			return otelShutdown(context.Background())
		}
		return nil
	},
	RunE: runE,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ./config.json, then "+config.DefaultConfigPath()+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	addRunFlags(rootCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	var err error
	log, err = logging.New(verbose)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	return nil
}

// loadConfig resolves and loads the config file, then starts tracing.
func loadConfig() (*config.Config, error) {
	path, required := config.ResolvePath(cfgFile)
	var (
		cfg *config.Config
		err error
	)
	if required {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOptional(path)
	}
	if err != nil {
		return nil, err
	}
	log.Debug("config loaded", zap.String("path", path), zap.Strings("groups", cfg.GroupNames()))

	otelShutdown, err = telemetry.Init(context.Background(), cfg.Telemetry, verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to init telemetry: %w", err)
	}
	return cfg, nil
}
