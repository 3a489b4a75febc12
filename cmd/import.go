package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/galzu/leadfinder/internal/importer"
	"github.com/galzu/leadfinder/internal/lead"
)

var importSource string

var importCmd = &cobra.Command{
	Use:   "import <file.csv|file.xlsx|file.json>",
	Short: "Import leads from a CSV, XLSX, or JSON file",
	Long:  "Reads header-keyed rows, normalizes them, and upserts into the lead store. Re-importing the same handles updates existing leads instead of duplicating them.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		rows, err := importer.ReadFile(args[0])
		if err != nil {
			return err
		}

		written, err := initResolver(s).IngestBatch(ctx, importSource, rows)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.String("file", args[0]),
			zap.String("source", importSource),
			zap.Int("rows", len(rows)),
			zap.Int("written", written))
		cmd.Printf("imported %d of %d rows from %s\n", written, len(rows), args[0])
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importSource, "source", lead.SourceManual, "source tag for imported rows")
	rootCmd.AddCommand(importCmd)
}
