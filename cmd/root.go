package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/viktsys/tweetimpact/config"
)

var configPath string

var rootCMD = &cobra.Command{
	Use:   "tweetimpact",
	Short: "Tweet Impact on Minute Prices",
	Long: `A CLI application that measures how a stock price moved in the minutes
after each social-media post. It builds a minute grid from price CSV files,
labels every post as up, down or neutral, serves the results through a REST
API and exports them as a dataset.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCMD.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCMD.PersistentFlags().StringVarP(&configPath, "config", "c", getEnvDefault("TWEETIMPACT_CONFIG", "config.yaml"),
		"path to the YAML config file (optional)")

	rootCMD.AddCommand(serverCMD)
	rootCMD.AddCommand(ingestCMD)
	rootCMD.AddCommand(exportCMD)
}

// loadConfig reads and validates the config, exiting on failure.
func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
