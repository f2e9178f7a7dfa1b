package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/sp-ranking/internal/contracts"
)

// runCmd executes one ranking run in the foreground
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ranking pipeline once",
	Long: `Creates a run, fetches metrics for every symbol, scores and ranks them,
and stores the results. Progress is printed as the run advances.

Ctrl+C cancels the run; it is recorded as failed.

Example:
  go run ./cmd/ranker run --mode buffett`,
	RunE: runRanking,
}

var runMode string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runMode, "mode", "both", "formula mode (buffett|cramer|both)")
}

func runRanking(cmd *cobra.Command, args []string) error {
	mode, err := contracts.ParseFormulaMode(runMode)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.close(closeCtx)
	}()

	run, err := a.pipeline.Trigger(ctx, mode)
	if err != nil {
		return fmt.Errorf("trigger run: %w", err)
	}

	PrintJobHeader(JobMetadata{
		JobID:     run.ID,
		JobType:   "Ranking run",
		Tag:       string(mode),
		Timestamp: time.Now().Format("2006-01-02 15:04:05"),
	})
	start := time.Now()

	// Ctrl+C cancels the background run; the watcher then sees it fail
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.pipeline.Shutdown(shutdownCtx)
	}()

	var final contracts.Run
	for update := range a.runs.Watch(context.Background(), run.ID, 500*time.Millisecond) {
		fmt.Printf("[%s] %3d%%  %s\n", update.Status, update.Progress, update.Message)
		final = update
	}
	a.pipeline.Wait()

	if final.Status != contracts.StatusCompleted {
		PrintError(fmt.Sprintf("Run #%d %s: %s", run.ID, final.Status, final.Message))
		return fmt.Errorf("run %d did not complete", run.ID)
	}

	PrintJobCompletion(run.ID, time.Since(start).Seconds())
	return nil
}
