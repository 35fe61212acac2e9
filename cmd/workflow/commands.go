package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/abd3rr/workflow-api/internal/config"
	"github.com/abd3rr/workflow-api/internal/db"
	"github.com/abd3rr/workflow-api/internal/mcp"
	"github.com/abd3rr/workflow-api/internal/server"
	"github.com/abd3rr/workflow-api/pkg/models"
	"github.com/spf13/cobra"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Create the .workflow directory, config and database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetDir := "."
			if len(args) > 0 {
				targetDir = args[0]
			}
			return runInit(cmd, opts, targetDir)
		},
	}
}

func runInit(cmd *cobra.Command, opts *rootOptions, targetDir string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	workDir := filepath.Join(targetDir, ".workflow")
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("failed to create .workflow directory: %w", err)
	}
	fmt.Fprintln(out, "✓ Created .workflow/ directory")

	gitignorePath := filepath.Join(workDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte("workflow.db*\n"), 0644); err != nil {
		return fmt.Errorf("failed to create .gitignore: %w", err)
	}

	configPath := filepath.Join(workDir, "config.yaml")
	cfg, err := config.Load(configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.Default()
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Wrote %s\n", configPath)
	} else if err != nil {
		return err
	}

	// Relative paths in the config are relative to targetDir, where later
	// commands run.
	cfg.Database.Path = underDir(targetDir, cfg.Database.Path)
	cfg.Snapshot.Path = underDir(targetDir, cfg.Snapshot.Path)
	if opts.dbPath != "" {
		cfg.Database.Path = opts.dbPath
	}

	// The snapshot is imported before the catalog is reconciled so that
	// executions keep pointing at the method rows they were created with.
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	if err := database.Init(ctx); err != nil {
		database.Close()
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if _, err := os.Stat(cfg.Snapshot.Path); err == nil {
		if err := database.ImportSnapshot(ctx, cfg.Snapshot.Path); err != nil {
			database.Close()
			return fmt.Errorf("failed to import snapshot: %w", err)
		}
		fmt.Fprintf(out, "✓ Imported snapshot from %s\n", cfg.Snapshot.Path)
	}
	if err := database.Close(); err != nil {
		return err
	}

	a, err := opts.openAppWith(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	fmt.Fprintf(out, "✓ Initialized database at %s\n", cfg.Database.Path)
	fmt.Fprintf(out, "✓ %d methods registered\n", len(a.Catalog.Methods()))
	return nil
}

func underDir(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the workflow tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			return mcp.Serve(mcp.NewServer(a.Engine, version))
		},
	}
}

func newWebCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "web",
		Short: "Serve the JSON API and metrics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.Config.Server.Addr
			}
			srv := server.NewServer(a.Engine, a.Metrics.Registry, a.Log)

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides the config")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show a summary of projects, tasks and methods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			projects, err := a.DB.ListProjects(ctx)
			if err != nil {
				return err
			}
			tasks, err := a.Engine.ListTasks(ctx)
			if err != nil {
				return err
			}

			counts := make(map[models.TaskStatus]int)
			for _, t := range tasks {
				counts[t.Status]++
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Workflow Status")
			fmt.Fprintln(out, "===============")
			fmt.Fprintf(out, "Projects:    %d\n", len(projects))
			fmt.Fprintf(out, "Methods:     %d\n", len(a.Catalog.Methods()))
			fmt.Fprintf(out, "Total Tasks: %d\n", len(tasks))
			fmt.Fprintln(out, "\nTask Breakdown:")
			fmt.Fprintf(out, "  Pending:                %d\n", counts[models.TaskStatusPending])
			fmt.Fprintf(out, "  Starting:               %d\n", counts[models.TaskStatusStarting])
			fmt.Fprintf(out, "  Waiting for validation: %d\n", counts[models.TaskStatusWaitingForValidation])
			fmt.Fprintf(out, "  Finished:               %d\n", counts[models.TaskStatusFinished])
			return nil
		},
	}
}

func newTasksCmd(opts *rootOptions) *cobra.Command {
	var projectID, stepID, status string
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			var tasks []*models.Task
			switch {
			case stepID != "":
				tasks, err = a.Engine.GetTasksByStep(ctx, stepID)
			case projectID != "":
				tasks, err = a.Engine.GetTasksByProject(ctx, projectID)
			default:
				tasks, err = a.Engine.ListTasks(ctx)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-36s %-30s %-24s %s\n", "ID", "NAME", "STATUS", "METHODS")
			fmt.Fprintln(out, "----------------------------------------------------------------------------------------------------")
			for _, t := range tasks {
				if status != "" && string(t.Status) != status {
					continue
				}
				fmt.Fprintf(out, "%-36s %-30s %-24s %d\n", t.ID, t.Name, t.Status, len(t.Executions))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "Filter by project ID")
	cmd.Flags().StringVar(&stepID, "step", "", "Filter by step ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (PENDING, STARTING, WAITING_FOR_VALIDATION, FINISHED)")
	return cmd
}

func newMethodsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "Reconcile and list the method catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			for _, name := range a.Catalog.Added {
				fmt.Fprintf(out, "+ %s\n", name)
			}
			for _, name := range a.Catalog.Removed {
				fmt.Fprintf(out, "- %s\n", name)
			}

			fmt.Fprintf(out, "%-20s %s\n", "NAME", "PARAMETERS")
			for _, m := range a.Catalog.Methods() {
				params := ""
				for i, p := range m.Parameters {
					if i > 0 {
						params += ", "
					}
					params += p.Name + " " + p.Type
				}
				fmt.Fprintf(out, "%-20s %s\n", m.Name, params)
			}
			return nil
		},
	}
}

func newStartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start <project-id>",
		Short: "Start the project's initial tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			started, err := a.Engine.StartInitialTasks(ctx, args[0])
			if err != nil {
				return err
			}
			printStarted(cmd, started)
			return nil
		},
	}
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <task-id>",
		Short: "Validate a task and start its pending children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			started, err := a.Engine.ValidateAndStartChildTasks(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Validated %s\n", args[0])
			printStarted(cmd, started)
			return nil
		},
	}
}

func newInvalidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <task-id>",
		Short: "Send a task waiting for validation back for rework",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			task, err := a.Engine.InvalidateTask(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is %s\n", task.Name, task.Status)
			return nil
		},
	}
}

func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export or import a JSONL snapshot of the database",
	}

	run := func(export bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			path := a.Config.Snapshot.Path
			if len(args) > 0 {
				path = args[0]
			}
			if export {
				err = a.DB.ExportSnapshot(ctx, path)
			} else {
				err = a.DB.ImportSnapshot(ctx, path)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", path)
			return nil
		}
	}

	cmd.AddCommand(
		&cobra.Command{Use: "export [path]", Short: "Write every table to a snapshot file", Args: cobra.MaximumNArgs(1), RunE: run(true)},
		&cobra.Command{Use: "import [path]", Short: "Load a snapshot, keeping existing rows", Args: cobra.MaximumNArgs(1), RunE: run(false)},
	)
	return cmd
}

func printStarted(cmd *cobra.Command, started []*models.Task) {
	out := cmd.OutOrStdout()
	if len(started) == 0 {
		fmt.Fprintln(out, "No tasks started")
		return
	}
	for _, t := range started {
		fmt.Fprintf(out, "✓ Started %s (%s)\n", t.Name, t.ID)
	}
}
