package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/modelstore/internal/app"
	"github.com/dshills/modelstore/internal/export"
)

var (
	exportFormat   string
	exportCompress bool
	exportOutput   string
	exportName     string
)

// exportCmd dumps tables as JSON or CSV
var exportCmd = &cobra.Command{
	Use:   "export [table...]",
	Short: "Export store tables as JSON or CSV",
	Long: `Export the named tables, or every table when none is named.
With --output the export is written to that path ("-" for stdout); otherwise
it is saved in the data directory as <name>.<format>.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(exportFormat)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openApp(ctx, app.Options{})
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		if exportOutput == "" {
			if !a.Persistent() {
				return fmt.Errorf("volatile storage has no data directory, use --output")
			}
			if len(args) > 0 {
				return fmt.Errorf("saving to the data directory exports every table, use --output for a subset")
			}
			name, err := a.Exporter.SaveToStore(ctx, a.Files, exportName, format, exportCompress)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", name)
			return nil
		}

		content, err := a.Exporter.Export(ctx, format, args...)
		if err != nil {
			return err
		}
		if exportCompress {
			if content, err = export.Compress(content); err != nil {
				return err
			}
		}
		if exportOutput == "-" {
			_, err = cmd.OutOrStdout().Write(content)
			return err
		}
		if err := os.WriteFile(exportOutput, content, 0o644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", string(export.FormatJSON), "Export format (json or csv)")
	exportCmd.Flags().BoolVar(&exportCompress, "compress", false, "Snappy-compress the export")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write the export to this path instead of the data directory")
	exportCmd.Flags().StringVar(&exportName, "name", "export", "File name, without extension, inside the data directory")
}
