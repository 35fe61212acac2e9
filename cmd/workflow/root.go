package main

import (
	"context"
	"io"

	"github.com/abd3rr/workflow-api/internal/app"
	"github.com/abd3rr/workflow-api/internal/config"
	"github.com/abd3rr/workflow-api/internal/logger"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	dbPath     string
	debug      bool
	json       bool

	// logOut receives log output; stdout is reserved for command output
	// and the MCP stdio transport.
	logOut io.Writer
}

func newRootCmd(logOut io.Writer) *cobra.Command {
	opts := &rootOptions{logOut: logOut}

	cmd := &cobra.Command{
		Use:           "workflow",
		Short:         "Coordinate tasks, their dependencies and the actions they run",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to config file (default $"+config.EnvPath+" or "+config.DefaultPath+")")
	flags.StringVar(&opts.dbPath, "db-path", "", "Path to database file, overrides the config")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flags.BoolVar(&opts.json, "json", false, "Log as JSON")

	cmd.AddCommand(
		newInitCmd(opts),
		newMCPCmd(opts),
		newWebCmd(opts),
		newStatusCmd(opts),
		newTasksCmd(opts),
		newMethodsCmd(opts),
		newStartCmd(opts),
		newValidateCmd(opts),
		newInvalidateCmd(opts),
		newSnapshotCmd(opts),
	)
	return cmd
}

// loadConfig reads the config file and applies flag overrides.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.dbPath != "" {
		cfg.Database.Path = o.dbPath
	}
	if o.debug {
		cfg.Log.Level = "debug"
	}
	if o.json {
		cfg.Log.JSON = true
	}
	return cfg, nil
}

func (o *rootOptions) openApp(ctx context.Context) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return o.openAppWith(ctx, cfg)
}

func (o *rootOptions) openAppWith(ctx context.Context, cfg *config.Config) (*app.App, error) {
	log, err := logger.Setup(cfg.Log.Level, cfg.Log.JSON, o.logOut)
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg, log)
}
