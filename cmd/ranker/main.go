package main

import (
	"os"

	"github.com/wonny/sp-ranking/cmd/ranker/commands"
)

// main is the entry point for the ranker CLI
// ⭐ single CLI entry point: go run ./cmd/ranker [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
