package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/sp-ranking/internal/contracts"
)

// latestCmd prints a page of the latest completed run
var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the latest rankings",
	Long: `Prints a filtered, sorted page of the most recent completed run.

Example:
  go run ./cmd/ranker latest
  go run ./cmd/ranker latest --mode cramer --sector Energy,Utilities --sort score_cramer --desc
  go run ./cmd/ranker latest --min-cap 1e11 --completeness 80 --page 1 --limit 25`,
	RunE: showLatest,
}

var (
	latestMode         string
	latestSectors      []string
	latestSort         string
	latestDesc         bool
	latestMinCap       float64
	latestMaxCap       float64
	latestCompleteness float64
	latestPage         int
	latestLimit        int
)

func init() {
	rootCmd.AddCommand(latestCmd)

	latestCmd.Flags().StringVar(&latestMode, "mode", "", "preferred formula mode (falls back to any)")
	latestCmd.Flags().StringSliceVar(&latestSectors, "sector", nil, "sector filter (repeatable or comma separated)")
	latestCmd.Flags().StringVar(&latestSort, "sort", string(contracts.SortCombinedRank), "sort column")
	latestCmd.Flags().BoolVar(&latestDesc, "desc", false, "sort descending")
	latestCmd.Flags().Float64Var(&latestMinCap, "min-cap", 0, "minimum market cap (inclusive)")
	latestCmd.Flags().Float64Var(&latestMaxCap, "max-cap", 0, "maximum market cap (inclusive)")
	latestCmd.Flags().Float64Var(&latestCompleteness, "completeness", 0, "minimum completeness (0-100)")
	latestCmd.Flags().IntVar(&latestPage, "page", 0, "zero-based page")
	latestCmd.Flags().IntVar(&latestLimit, "limit", 20, "rows per page")
}

func showLatest(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())

	q := contracts.ResultQuery{
		Sectors:  latestSectors,
		SortBy:   contracts.SortField(latestSort),
		SortDir:  contracts.SortAsc,
		Page:     latestPage,
		PageSize: latestLimit,
	}
	if latestMode != "" {
		if q.FormulaMode, err = contracts.ParseFormulaMode(latestMode); err != nil {
			return err
		}
	}
	if latestDesc {
		q.SortDir = contracts.SortDesc
	}
	if cmd.Flags().Changed("min-cap") {
		q.MarketCapMin = &latestMinCap
	}
	if cmd.Flags().Changed("max-cap") {
		q.MarketCapMax = &latestMaxCap
	}
	if cmd.Flags().Changed("completeness") {
		q.MinCompleteness = &latestCompleteness
	}

	page, err := a.runs.LatestResults(cmd.Context(), q)
	if err != nil {
		return err
	}
	if page.RunID == nil {
		PrintWarning("No completed run yet. Start one with: ranker run")
		return nil
	}

	fmt.Printf("Run #%d: %d matching rows\n\n", *page.RunID, page.Total)

	widths := []int{5, 7, 28, 24, 12, 8, 8, 6}
	PrintTableHeader([]string{"Rank", "Symbol", "Name", "Sector", "Market Cap", "Buffett", "Cramer", "Data"}, widths)
	for _, r := range page.Items {
		PrintTableRow([]string{
			fmt.Sprintf("%d", r.CombinedRank),
			r.Symbol,
			truncate(r.Name, widths[2]),
			truncate(r.Sector, widths[3]),
			formatCap(r.MarketCap),
			formatScore(r.ScoreBuffett),
			formatScore(r.ScoreCramer),
			fmt.Sprintf("%.0f%%", r.Completeness),
		}, widths)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func formatScore(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}

// formatCap prints market cap in billions
func formatCap(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1fB", *v/1e9)
}
