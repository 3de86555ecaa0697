package cmd

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/viktsys/tweetimpact/config"
	"github.com/viktsys/tweetimpact/database"
	"github.com/viktsys/tweetimpact/impact"
	"github.com/viktsys/tweetimpact/ingest"
)

var ingestCMD = &cobra.Command{
	Use:   "ingest",
	Short: "Load price or post CSV files into the database",
	Long: `Parse price or post CSV files and store them in the configured database
so the server can run with data.source set to database.`,
}

var ingestPricesCMD = &cobra.Command{
	Use:   "prices [data-directory]",
	Short: "Ingest price CSV files from the specified directory with parallel processing",
	Long: `Process every CSV file under the directory using parallel goroutines.
Files that cannot be parsed are reported and skipped.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		dataDir := cfg.Data.PricesDir
		if len(args) == 1 {
			dataDir = args[0]
		}

		loc, err := impact.NewLocalizer(cfg.Data.SourceTimezone)
		if err != nil {
			log.Fatalf("Invalid source timezone: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		processor := openProcessor(cfg, loc)

		log.Printf("Starting parallel ingestion from directory: %s", dataDir)
		report, err := processor.ProcessPriceDirectory(ctx, dataDir)
		if err != nil {
			log.Fatalf("Failed to process data: %v", err)
		}
		report.Log()

		fmt.Println("Price ingestion completed successfully with parallel processing!")
	},
}

var ingestEventsCMD = &cobra.Command{
	Use:   "events [csv-file]",
	Short: "Ingest posts from a CSV file",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		path := cfg.Data.TweetsCSV
		if len(args) == 1 {
			path = args[0]
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		processor := openProcessor(cfg, impact.Localizer{})

		// Stored events keep the full history; date and trading-hour filters
		// apply when the server loads them.
		n, err := processor.ProcessEvents(ctx, path, ingest.EventFilter{})
		if err != nil {
			log.Fatalf("Failed to ingest events: %v", err)
		}

		fmt.Printf("Event ingestion completed successfully: %d posts stored\n", n)
	},
}

func init() {
	ingestCMD.AddCommand(ingestPricesCMD)
	ingestCMD.AddCommand(ingestEventsCMD)
}

func openProcessor(cfg *config.Config, loc impact.Localizer) *ingest.Processor {
	log.Println("Initializing database...")
	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	return ingest.NewProcessor(database.NewStore(db), loc, cfg.Ingest)
}
