package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/modelstore/internal/app"
	"github.com/dshills/modelstore/internal/schema"
)

var migrateTo int

// migrateCmd applies pending migrations or rolls back to a version
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long: `Apply every pending migration, backing up a persistent database first.
With --to, roll back to the given version instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, app.Options{SkipMigrations: true})
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		var res *schema.RunResult
		if cmd.Flags().Changed("to") {
			if a.Persistent() {
				if _, err := a.BackupDatabase(ctx, "pre-rollback"); err != nil {
					return err
				}
			}
			res, err = a.Schema.RollbackTo(ctx, migrateTo)
		} else {
			res, err = a.Migrate(ctx)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(res.Versions) == 0 {
			fmt.Fprintf(out, "Schema is at version %d, nothing to do\n", res.CurrentVersion)
			return nil
		}
		versions := make([]string, 0, len(res.Versions))
		for _, v := range res.Versions {
			versions = append(versions, fmt.Sprint(v))
		}
		fmt.Fprintf(out, "Changed versions: %s\n", strings.Join(versions, ", "))
		fmt.Fprintf(out, "Schema is at version %d\n", res.CurrentVersion)
		return nil
	},
}

// statusCmd reports schema, storage and workspace state
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show schema version, storage mode and workspace statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, app.Options{SkipMigrations: true})
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Storage: %s (engine %s)\n", a.Init.StorageMode, a.Init.Version)
		if a.Persistent() {
			fmt.Fprintf(out, "Data directory: %s\n", a.Files.DataPath())
			if q := a.Files.GetQuotaInfo(); q != nil {
				fmt.Fprintf(out, "Usage: %d bytes of %d (%.2f%%), %d available\n", q.Usage, q.Quota, q.Percent, q.Available)
			}
		}

		status, err := a.Schema.GetMigrationStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Schema version: %d of %d\n", status.CurrentVersion, status.LatestVersion)
		for _, m := range status.Pending {
			fmt.Fprintf(out, "  pending: %d %s\n", m.Version, m.Name)
		}
		if len(status.Pending) > 0 {
			return nil
		}

		if v := a.Schema.ValidateSchema(ctx); !v.Valid {
			for _, issue := range v.Issues {
				fmt.Fprintf(out, "  issue: %s\n", issue)
			}
		}

		workspaces, err := a.Store.ListWorkspaces(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Workspaces: %d\n", len(workspaces))
		for _, ws := range workspaces {
			stats, err := a.Store.GetStats(ctx, ws.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  %s (%s): %d domains, %d tables, %d columns, %d relationships\n",
				ws.Name, ws.ID, stats.Domains, stats.Tables, stats.Columns, stats.Relationships)
		}

		changed, err := a.Syncer.GetChangedFiles(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Changed files: %d\n", len(changed))
		for _, f := range changed {
			fmt.Fprintf(out, "  %s %s\n", f.SyncStatus, f.FilePath)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().IntVar(&migrateTo, "to", 0, "Roll back to this schema version")
}
