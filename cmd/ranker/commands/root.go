package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	env     string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ranker",
	Short: "S&P 500 fundamental ranking service",
	Long: `Ranker CLI

Scores the S&P 500 universe with the Buffett (quality) and Cramer (value)
formulas and serves the rankings over HTTP.

Usage:
  go run ./cmd/ranker [command]

Examples:
  go run ./cmd/ranker api
  go run ./cmd/ranker run --mode both
  go run ./cmd/ranker latest --sector Energy --limit 20
  go run ./cmd/ranker symbols seed`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production|test)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
