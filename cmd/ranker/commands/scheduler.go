package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Scheduler management",
	Long: `Starts the scheduler or manages its jobs.

Subcommands:
  start   - Start the scheduler daemon
  list    - Registered jobs and their schedules
  run     - Run one job now and wait for it

Example:
  go run ./cmd/ranker scheduler start
  go run ./cmd/ranker scheduler list
  go run ./cmd/ranker scheduler run ranking_both`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		Long: `Starts the scheduler and schedules every registered job.

Registered jobs:
- ranking_<mode>: RANKING_SCHEDULE (weekdays after the US close by default)
- symbols_refresh: SYMBOLS_REFRESH_SCHEDULE (weekly by default, empty disables)

Stop with Ctrl+C.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run a job now",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Ranker Scheduler ===")

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}

	sched, err := a.newScheduler()
	if err != nil {
		a.close(cmd.Context())
		return fmt.Errorf("init scheduler: %w", err)
	}

	// Start scheduler
	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, stat := range sched.GetJobStats() {
		fmt.Printf("  - %-18s %s\n", stat.JobName, stat.Schedule)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.Stop(ctx); err != nil {
		a.log.WithError(err).Warn("Scheduler stop timed out")
	}
	a.close(ctx)

	fmt.Println("Scheduler stopped")
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())

	sched, err := a.newScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	// next run times are only known once cron is running
	sched.Start()
	defer sched.Stop(cmd.Context())

	widths := []int{18, 20, 20}
	PrintTableHeader([]string{"Job", "Schedule", "Next run"}, widths)
	for _, stat := range sched.GetJobStats() {
		next := "-"
		if stat.NextRun != nil {
			next = stat.NextRun.Local().Format("2006-01-02 15:04")
		}
		PrintTableRow([]string{stat.JobName, stat.Schedule, next}, widths)
	}

	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	sched, err := a.newScheduler()
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Printf("Running job: %s\n", jobName)

	result, err := sched.RunJobSync(ctx, jobName)
	if err != nil {
		return err
	}
	if !result.Success {
		PrintError(fmt.Sprintf("%s failed after %d attempt(s): %s", jobName, result.Attempts, result.Error))
		return fmt.Errorf("job %s failed", jobName)
	}

	PrintSuccess(fmt.Sprintf("%s finished in %s", jobName, result.Duration))
	return nil
}
