package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/livinlefevreloca/periodic/internal/dashboard"
	"github.com/livinlefevreloca/periodic/internal/db"
	"github.com/livinlefevreloca/periodic/internal/scanner"
	"github.com/livinlefevreloca/periodic/internal/target"
)

func scanCmd(configPath *string, resolver target.Resolver) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Scan source roots once and register discovered tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), cmd, *configPath)
			if err != nil {
				return err
			}
			defer e.Close()

			discovered, err := e.scanner(resolver).Scan(cmd.Context(), e.config.ScanPaths)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "discovered %d scheduled task(s)\n", discovered)
			return nil
		},
	}
}

func runCmd(configPath *string, resolver target.Resolver) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scanner and runner loops",
		Long: `Run the scanner and runner loops until interrupted.

Usage:
  periodic run          # scan and run until SIGINT or SIGTERM
  periodic run --once   # one scan, one pass over due tasks, then exit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			once, _ := cmd.Flags().GetBool("once")
			return runScheduler(cmd, *configPath, resolver, once)
		},
	}

	cmd.Flags().Bool("once", false, "Run a single scan and run cycle and exit")

	return cmd
}

func runScheduler(cmd *cobra.Command, configPath string, resolver target.Resolver, once bool) error {
	ctx := cmd.Context()
	e, err := setup(ctx, cmd, configPath)
	if err != nil {
		return err
	}
	defer e.Close()

	s := e.scanner(resolver)
	r := e.runner(resolver)
	out := cmd.OutOrStdout()

	if once {
		discovered, err := s.Scan(ctx, e.config.ScanPaths)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "discovered %d scheduled task(s)\n", discovered)

		executed, err := r.RunDueOnce(ctx, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "executed %d task(s)\n", executed)
		return nil
	}

	e.logger.Info("starting periodic",
		"scan_paths", e.config.ScanPaths,
		"scan_interval", e.config.ScanInterval(),
		"runner_poll", e.config.RunnerPoll(),
		"watch", e.config.ScanWatch)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Loop(ctx, scanner.LoopConfig{
			Roots:    e.config.ScanPaths,
			Interval: e.config.ScanInterval(),
			Watch:    e.config.ScanWatch,
		})
	})
	g.Go(func() error {
		return r.Loop(ctx, e.config.RunnerPoll())
	})

	err = g.Wait()
	e.logger.Info("shutting down gracefully")
	return err
}

func tasksCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), cmd, *configPath)
			if err != nil {
				return err
			}
			defer e.Close()

			tasks, err := e.catalog.ListTasks(cmd.Context())
			if err != nil {
				return err
			}
			dashboard.TaskTable(cmd.OutOrStdout(), tasks)
			return nil
		},
	}
}

func runsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs <task-id>",
		Short: "Show the run history of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			limit, _ := cmd.Flags().GetInt("limit")

			e, err := setup(cmd.Context(), cmd, *configPath)
			if err != nil {
				return err
			}
			defer e.Close()

			task, err := e.catalog.GetTask(cmd.Context(), id)
			if err != nil {
				if db.IsNotFound(err) {
					return fmt.Errorf("task %d not found", id)
				}
				return err
			}

			runs, err := e.catalog.GetRunLogs(cmd.Context(), id, limit)
			if err != nil {
				return err
			}
			dashboard.RunHistoryTable(cmd.OutOrStdout(), task.Identifier, runs)
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs to show")

	return cmd
}

func enableCmd(configPath *string, enabled bool) *cobra.Command {
	use, short, verb := "enable <task-id>", "Resume scheduling a task", "enabled"
	if !enabled {
		use, short, verb = "disable <task-id>", "Stop scheduling a task", "disabled"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}

			e, err := setup(cmd.Context(), cmd, *configPath)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.catalog.SetTaskEnabled(cmd.Context(), id, enabled); err != nil {
				if db.IsNotFound(err) {
					return fmt.Errorf("task %d not found", id)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %d %s\n", id, verb)
			return nil
		},
	}
}

func dashboardCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "dashboard",
		Aliases: []string{"tui"},
		Short:   "Show a live view of tasks and recent runs",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context(), cmd, *configPath)
			if err != nil {
				return err
			}
			defer e.Close()

			return dashboard.Run(cmd.Context(), e.catalog, e.config.DashboardRefresh(), cmd.OutOrStdout())
		},
	}
}
