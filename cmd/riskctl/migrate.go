package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/periop-risk-mcp-server/internal/config"
	"github.com/periop-risk-mcp-server/internal/database"
)

func migrateCmd(opts *rootOptions) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default: search ./, ./config)")

	run := func(step func(ctx context.Context, r *database.MigrationRunner) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cm, err := config.NewManagerFromFile(configFile)
			if err != nil {
				return err
			}
			runner, err := database.NewMigrationRunner(cm.GetDatabaseURL(), cm.GetConfig().Database.MigrationsPath, opts.logger())
			if err != nil {
				return err
			}
			defer runner.Close()
			return step(cmd.Context(), runner)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: run(func(ctx context.Context, r *database.MigrationRunner) error {
			return r.Up(ctx)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE: run(func(ctx context.Context, r *database.MigrationRunner) error {
			return r.Down(ctx)
		}),
	})

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show the schema version",
	}
	versionCmd.RunE = run(func(ctx context.Context, r *database.MigrationRunner) error {
		status, err := r.Status()
		if err != nil {
			return err
		}
		fmt.Fprintf(versionCmd.OutOrStdout(), "version %d (dirty: %t)\n", status.Version, status.Dirty)
		return nil
	})
	cmd.AddCommand(versionCmd)

	return cmd
}
