package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// symbolsCmd manages the symbol directory
var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "Manage the symbol directory",
	Long: `Seeds and lists the S&P 500 symbol directory the pipeline ranks.

Subcommands:
  seed   - Download the constituents table and upsert it
  list   - Print the directory

Example:
  go run ./cmd/ranker symbols seed
  go run ./cmd/ranker symbols list`,
}

var (
	symbolsSeedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Download and upsert the constituents",
		RunE:  seedSymbols,
	}

	symbolsListCmd = &cobra.Command{
		Use:   "list",
		Short: "Print the symbol directory",
		RunE:  listSymbols,
	}
)

func init() {
	rootCmd.AddCommand(symbolsCmd)
	symbolsCmd.AddCommand(symbolsSeedCmd)
	symbolsCmd.AddCommand(symbolsListCmd)
}

func seedSymbols(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())

	n, err := a.seeder.Seed(cmd.Context())
	if err != nil {
		return fmt.Errorf("seed symbols: %w", err)
	}

	PrintSuccess(fmt.Sprintf("Upserted %d symbols", n))
	return nil
}

func listSymbols(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())

	symbols, err := a.store.ListSymbols(cmd.Context())
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		PrintWarning("Symbol directory is empty. Seed it with: ranker symbols seed")
		return nil
	}

	widths := []int{7, 36, 28, 10}
	PrintTableHeader([]string{"Symbol", "Name", "Sector", "Mkt Cap"}, widths)
	for _, s := range symbols {
		PrintTableRow([]string{s.Symbol, truncate(s.Name, widths[1]), truncate(s.Sector, widths[2]), formatCap(s.MarketCap)}, widths)
	}
	fmt.Printf("\n%d symbols\n", len(symbols))
	return nil
}
