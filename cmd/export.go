package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/viktsys/tweetimpact/export"
)

const previewLimit = 3

var exportFlags struct {
	limit     int
	preview   bool
	pricesMin string
	pricesMax string
	format    string
	out       string
}

var exportCMD = &cobra.Command{
	Use:   "export",
	Short: "Export the per-post impact dataset",
	Long: `Compute the percent change after every post for horizons 1-20, 30 and 60
minutes and write one row per post. Posts whose minute has no price bar are
skipped.

Horizons count price bars, not wall-clock minutes: near the close a change
reaches into the next session, and past the last bar it repeats the last
known return. Such rows have gap_crossed set.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if exportFlags.pricesMin != "" {
			cfg.Filter.Min = exportFlags.pricesMin
		}
		if exportFlags.pricesMax != "" {
			cfg.Filter.Max = exportFlags.pricesMax
		}
		if exportFlags.format != "" {
			cfg.Export.Format = exportFlags.format
		}
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid export options: %v", err)
		}

		limit := exportFlags.limit
		outPath := cfg.Export.OutPath
		if exportFlags.preview {
			limit = previewLimit
			outPath = cfg.Export.PreviewPath
		}
		if exportFlags.out != "" {
			outPath = exportFlags.out
		}

		writer, err := export.NewWriter(cfg.Export.Format)
		if err != nil {
			log.Fatal(err)
		}

		startTime := time.Now()
		state, cleanup, err := loadState(context.Background(), cfg)
		if err != nil {
			log.Fatalf("Failed to load data: %v", err)
		}
		defer cleanup()

		if first, last, ok := state.Grid().Range(); ok {
			log.Printf("Price range: %s -> %s (UTC)", first.Format(time.RFC3339), last.Format(time.RFC3339))
		}

		records := export.BuildRecords(state, limit)
		path, err := export.WriteFile(outPath, writer, records)
		if err != nil {
			log.Fatalf("Failed to export dataset: %v", err)
		}

		fmt.Printf("Exported %d rows to %s in %v\n", len(records), path, time.Since(startTime))
	},
}

func init() {
	f := exportCMD.Flags()
	f.IntVar(&exportFlags.limit, "limit", 0, "export at most N rows (0 = all)")
	f.BoolVar(&exportFlags.preview, "preview", false, fmt.Sprintf("write %d rows to the preview path", previewLimit))
	f.StringVar(&exportFlags.pricesMin, "prices-min", "", "earliest post time, RFC3339 (UTC)")
	f.StringVar(&exportFlags.pricesMax, "prices-max", "", "latest post time, RFC3339 (UTC)")
	f.StringVar(&exportFlags.format, "format", "", "output format: csv, parquet or json")
	f.StringVar(&exportFlags.out, "out", "", "output path (extension follows the format)")
}
