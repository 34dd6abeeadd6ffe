// Package cli wires configuration, the catalog, and the scheduling loops into commands.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/livinlefevreloca/periodic/internal/config"
	"github.com/livinlefevreloca/periodic/internal/db"
	"github.com/livinlefevreloca/periodic/internal/logging"
	"github.com/livinlefevreloca/periodic/internal/runner"
	"github.com/livinlefevreloca/periodic/internal/scanner"
	"github.com/livinlefevreloca/periodic/internal/target"
)

// DefaultConfigPath is used when --config is not given
const DefaultConfigPath = "periodic.toml"

// NewRootCmd builds the periodic command tree. Targets are discovered and
// invoked through resolver.
func NewRootCmd(resolver target.Resolver) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "periodic",
		Short: "Discover recurring tasks and run them on their interval",
		Long: `periodic scans source roots for task manifests, records every task it
finds in a SQLite catalog, and runs each one when its interval elapses.

Running periodic with no subcommand is the same as 'periodic run'.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduler(cmd, configPath, resolver, false)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", DefaultConfigPath, "Path to configuration file (TOML)")

	rootCmd.AddCommand(scanCmd(&configPath, resolver))
	rootCmd.AddCommand(runCmd(&configPath, resolver))
	rootCmd.AddCommand(tasksCmd(&configPath))
	rootCmd.AddCommand(runsCmd(&configPath))
	rootCmd.AddCommand(enableCmd(&configPath, true))
	rootCmd.AddCommand(enableCmd(&configPath, false))
	rootCmd.AddCommand(dashboardCmd(&configPath))

	return rootCmd
}

// env is what every command needs once configuration has loaded
type env struct {
	config  *config.Config
	logger  *slog.Logger
	catalog *db.DB
}

// setup loads configuration and opens the catalog. Configuration errors are
// returned before the catalog is touched.
func setup(ctx context.Context, cmd *cobra.Command, configPath string) (*env, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := logging.New(cfg.Logging, cmd.ErrOrStderr())
	logger.Debug("configuration loaded", "config_file", configPath, "db_path", cfg.DBPath, "driver", cfg.DBDriver)

	catalog, err := db.Open(ctx, cfg.Database())
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", cfg.DBPath, err)
	}
	catalog.SetLogger(logger)

	version, err := catalog.SchemaVersion()
	if err != nil {
		catalog.Close()
		return nil, fmt.Errorf("read catalog schema version: %w", err)
	}
	logger.Debug("catalog ready", "driver", catalog.Driver(), "schema_version", version)

	return &env{config: cfg, logger: logger, catalog: catalog}, nil
}

func (e *env) Close() error {
	return e.catalog.Close()
}

func (e *env) scanner(resolver target.Resolver) *scanner.Scanner {
	return scanner.New(e.catalog, resolver, e.logger.With("component", "scanner"))
}

func (e *env) runner(resolver target.Resolver) *runner.Runner {
	executor := target.NewExecutor(resolver, e.config.TaskTimeout)
	return runner.New(e.catalog, executor, e.logger.With("component", "runner"))
}
