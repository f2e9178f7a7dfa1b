package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/sp-ranking/internal/contracts"
)

// statusCmd prints a run's status
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show run status",
	Long: `Shows the status of a run, or of the most recent run when --run-id is omitted.

Example:
  go run ./cmd/ranker status
  go run ./cmd/ranker status --run-id 42`,
	RunE: showRunStatus,
}

var statusRunID int64

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().Int64Var(&statusRunID, "run-id", 0, "run id (default latest)")
}

func showRunStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())

	var runID *int64
	if cmd.Flags().Changed("run-id") {
		runID = &statusRunID
	}

	run, err := a.runs.Status(cmd.Context(), runID)
	if errors.Is(err, contracts.ErrRunNotFound) {
		if runID == nil {
			PrintInfo("No runs yet (idle)")
			return nil
		}
		return fmt.Errorf("run %d not found", *runID)
	}
	if err != nil {
		return err
	}

	PrintDoubleSeparator()
	PrintKeyValue("Run", fmt.Sprintf("#%d", run.ID), 10)
	PrintKeyValue("Mode", string(run.FormulaMode), 10)
	PrintKeyValue("Status", string(run.Status), 10)
	PrintKeyValue("Progress", fmt.Sprintf("%d%%", run.Progress), 10)
	PrintKeyValue("Message", run.Message, 10)
	PrintKeyValue("Started", run.StartedAt.Local().Format("2006-01-02 15:04:05"), 10)
	if run.FinishedAt != nil {
		PrintKeyValue("Finished", run.FinishedAt.Local().Format("2006-01-02 15:04:05"), 10)
	}
	PrintDoubleSeparator()
	return nil
}
