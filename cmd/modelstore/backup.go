package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/modelstore/internal/app"
)

var (
	backupSuffix string
	backupKeep   int
)

// backupCmd groups the backup subcommands
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Manage database backups",
	Long:  `Commands for creating, listing, pruning and restoring backups of the database file.`,
}

// createBackupCmd represents the create command
var createBackupCmd = &cobra.Command{
	Use:   "create",
	Short: "Back up the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, app.Options{SkipMigrations: true})
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		name, err := a.BackupDatabase(ctx, backupSuffix)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", name)
		return nil
	},
}

// listBackupsCmd represents the list command
var listBackupsCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), app.Options{SkipMigrations: true})
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		backups, err := a.Files.ListBackups(a.Config.DatabaseName)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
		for _, b := range backups {
			fmt.Fprintf(w, "%s\t%d\t%s\n", b.Name, b.Size, b.ModTime.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

// pruneBackupsCmd represents the prune command
var pruneBackupsCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest backups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), app.Options{SkipMigrations: true})
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		keep := a.Config.Backup.Retention
		if cmd.Flags().Changed("keep") {
			keep = backupKeep
		}
		removed, err := a.Files.PruneBackups(a.Config.DatabaseName, keep)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d backups\n", removed)
		return nil
	},
}

// restoreBackupCmd represents the restore command
var restoreBackupCmd = &cobra.Command{
	Use:   "restore [backup-name]",
	Short: "Replace the database with a backup",
	Long:  `Replace the database file with a backup. No other process may have the database open.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		if err := app.RestoreDatabase(cfg, log, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", args[0])
		return nil
	},
}

func init() {
	createBackupCmd.Flags().StringVar(&backupSuffix, "suffix", "manual", "Suffix appended to the backup name")
	pruneBackupsCmd.Flags().IntVar(&backupKeep, "keep", 0, "Number of backups to keep (default: backup.retention)")

	backupCmd.AddCommand(createBackupCmd)
	backupCmd.AddCommand(listBackupsCmd)
	backupCmd.AddCommand(pruneBackupsCmd)
	backupCmd.AddCommand(restoreBackupCmd)
}
