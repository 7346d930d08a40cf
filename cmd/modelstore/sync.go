package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/modelstore/internal/app"
	"github.com/dshills/modelstore/internal/syncer"
)

var syncPrune bool

// syncCmd writes a snapshot file to the store
var syncCmd = &cobra.Command{
	Use:   "sync [snapshot.yaml]",
	Short: "Write a YAML model snapshot to the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, app.Options{})
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		snap, err := syncer.FileSource{Path: args[0]}.Snapshot(ctx)
		if err != nil {
			return err
		}
		res := a.Syncer.SyncFromMemoryWithOptions(ctx, snap, syncer.Options{PruneMissing: syncPrune})
		if res.Err != nil {
			return res.Err
		}

		out := cmd.OutOrStdout()
		for _, k := range []struct {
			name  string
			stats syncer.KindStats
		}{
			{"workspaces", res.Stats.Workspaces},
			{"domains", res.Stats.Domains},
			{"tables", res.Stats.Tables},
			{"relationships", res.Stats.Relationships},
			{"systems", res.Stats.Systems},
			{"decisions", res.Stats.Decisions},
			{"knowledge articles", res.Stats.KnowledgeArticles},
		} {
			fmt.Fprintf(out, "%-20s processed %d, added %d, updated %d, deleted %d\n",
				k.name, k.stats.Processed, k.stats.Added, k.stats.Updated, k.stats.Deleted)
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
		for _, e := range res.Errors {
			fmt.Fprintf(out, "error: %s\n", e)
		}
		if !res.Success {
			return fmt.Errorf("sync finished with %d errors", len(res.Errors))
		}
		return nil
	},
}

// watchCmd tracks file changes under a directory
var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Mark tracked model files modified or deleted as they change",
	Long: `Watch a directory tree and update the sync status of tracked files until
interrupted. The directory defaults to sync.watch_dir.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, app.Options{})
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		if len(args) == 1 {
			a.Config.Sync.WatchDir = args[0]
		}
		res, err := a.ScanWorkspace(ctx)
		if err != nil {
			return err
		}
		printScan(cmd, res)

		w, err := a.NewWatcher()
		if err != nil {
			return err
		}
		return w.Run(ctx)
	},
}

// scanCmd reconciles tracked files with a directory once
var scanCmd = &cobra.Command{
	Use:   "scan [dir]",
	Short: "Compare model files on disk with their recorded sync state",
	Long: `Read every model file under a directory (default: sync.watch_dir) and record
which are new, modified or deleted since they were last synced.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, app.Options{})
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		if len(args) == 1 {
			a.Config.Sync.WatchDir = args[0]
		}
		res, err := a.ScanWorkspace(ctx)
		if err != nil {
			return err
		}
		printScan(cmd, res)
		return nil
	},
}

func printScan(cmd *cobra.Command, res *syncer.ScanResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanned %d files (%d skipped, %d failed) in %s\n",
		res.FilesScanned, res.FilesSkipped, res.FilesFailed, res.Duration.Round(time.Millisecond))
	for _, p := range res.Report.New {
		fmt.Fprintf(out, "  new:      %s\n", p)
	}
	for _, p := range res.Report.Modified {
		fmt.Fprintf(out, "  modified: %s\n", p)
	}
	for _, p := range res.Report.Deleted {
		fmt.Fprintf(out, "  deleted:  %s\n", p)
	}
	for _, msg := range res.ErrorMessages {
		fmt.Fprintf(out, "  error:    %s\n", msg)
	}
}

func init() {
	syncCmd.Flags().BoolVar(&syncPrune, "prune", false, "Delete stored tables and relationships missing from the snapshot")
}
