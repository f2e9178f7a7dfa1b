package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/sp-ranking/internal/api"
	"github.com/wonny/sp-ranking/internal/api/handlers"
	"github.com/wonny/sp-ranking/internal/scheduler"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Starts the REST API server.

Endpoints:
  GET  /health               - Health check (database ping)
  GET  /symbols              - Symbol directory and sectors
  POST /rankings/run         - Trigger a ranking run
  GET  /rankings/status      - Run status (latest when run_id is omitted)
  GET  /rankings/latest      - Filtered, sorted page of the latest completed run
  GET  /rankings/export      - CSV / Excel download
  GET  /rankings/stream      - Websocket run progress

Example:
  go run ./cmd/ranker api
  go run ./cmd/ranker api --port 9000 --with-scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort          string
	apiWithScheduler bool
	apiStreamPoll    time.Duration
)

const shutdownTimeout = 30 * time.Second

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (default PORT)")
	apiCmd.Flags().BoolVar(&apiWithScheduler, "with-scheduler", false, "run the cron scheduler in-process")
	apiCmd.Flags().DurationVar(&apiStreamPoll, "stream-poll", time.Second, "run status poll interval for websocket streams")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}

	// Override port if flag is set
	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	log := a.log
	log.WithFields(map[string]interface{}{
		"port": a.cfg.Port,
		"env":  a.cfg.Env,
	}).Info("Initializing API server")

	router := api.NewRouter(api.Handlers{
		Health:   handlers.NewHealthHandler(a.store, "ranker-api"),
		Symbols:  handlers.NewSymbolsHandler(a.store, log),
		Rankings: handlers.NewRankingsHandler(a.pipeline, a.runs, a.exporter, log),
		Stream:   handlers.NewStreamHandler(a.runs, a.cfg.AllowedOrigins, apiStreamPoll, log),
	}, a.cfg.AllowedOrigins, log)

	server := api.New(a.cfg, log, router)

	var sched *scheduler.Scheduler
	if apiWithScheduler {
		if sched, err = a.newScheduler(); err != nil {
			a.close(context.Background())
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
	}

	// Start server with graceful shutdown
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal or a listen failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			log.WithError(err).Error("API server stopped")
		}
	}

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(ctx); err != nil {
			log.WithError(err).Warn("Scheduler stop timed out")
		}
	}

	shutdownErr := server.Shutdown(ctx)

	// in-flight runs get the rest of the timeout, then the store closes
	a.close(ctx)

	if shutdownErr != nil {
		return fmt.Errorf("server shutdown failed: %w", shutdownErr)
	}

	log.Info("Server stopped")
	return nil
}
