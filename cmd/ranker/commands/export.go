package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wonny/sp-ranking/internal/export"
)

// exportCmd writes a completed run to a file
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a completed run to CSV or Excel",
	Long: `Writes every row of a completed run, ordered by combined rank.
Without --run-id the latest completed run is exported.

Example:
  go run ./cmd/ranker export --format excel
  go run ./cmd/ranker export --run-id 42 --output top.csv`,
	RunE: runExport,
}

var (
	exportRunID  int64
	exportFormat string
	exportOutput string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().Int64Var(&exportRunID, "run-id", 0, "run id (default latest completed)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "excel", "excel | csv")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default rankings_run_<id>.<ext>)")
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())

	var runID *int64
	if cmd.Flags().Changed("run-id") {
		runID = &exportRunID
	}

	run, err := a.runs.ExportRun(cmd.Context(), runID)
	if err != nil {
		return err
	}

	path := exportOutput
	if path == "" {
		path = format.Filename(run.ID)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	n, err := a.exporter.Write(cmd.Context(), f, run.ID, format)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("export run %d: %w", run.ID, err)
	}

	PrintSuccess(fmt.Sprintf("Exported %d rows of run #%d to %s", n, run.ID, path))
	return nil
}
