package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/viktsys/tweetimpact/api"
	"github.com/viktsys/tweetimpact/app"
	"github.com/viktsys/tweetimpact/config"
	"github.com/viktsys/tweetimpact/database"
	"github.com/viktsys/tweetimpact/observability"
)

var serverCMD = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long:  `Load prices and posts, precompute labels and start the HTTP API server.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		state, cleanup, err := loadState(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to load data: %v", err)
		}
		defer cleanup()

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           api.SetupRoutes(state),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			log.Println("Shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("Server shutdown error: %v", err)
			}
		}()

		log.Printf("Starting server on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
		log.Println("Shutdown complete")
	},
}

// loadState builds the shared context from CSV files, or from the database
// when data.source is database.
func loadState(ctx context.Context, cfg *config.Config) (*app.Context, func(), error) {
	metrics := observability.NewMetrics("")
	cleanup := func() {}

	var store app.Store
	if cfg.Data.Source == "database" {
		log.Println("Initializing database...")
		db, err := database.Open(cfg.Database)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = func() { database.Close(db) }
		store = database.NewStore(db)
	}

	state, err := app.Load(ctx, cfg, store, metrics)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return state, cleanup, nil
}
