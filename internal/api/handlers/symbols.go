package handlers

import (
	"net/http"
	"sort"

	"github.com/wonny/sp-ranking/internal/contracts"
	"github.com/wonny/sp-ranking/pkg/logger"
)

// SymbolsHandler serves the symbol directory
type SymbolsHandler struct {
	directory contracts.SymbolDirectory
	logger    *logger.Logger
}

// NewSymbolsHandler creates a symbols handler
func NewSymbolsHandler(directory contracts.SymbolDirectory, log *logger.Logger) *SymbolsHandler {
	return &SymbolsHandler{directory: directory, logger: log}
}

// SymbolsResponse lists the directory and its distinct sectors
type SymbolsResponse struct {
	Symbols []contracts.Symbol `json:"symbols"`
	Sectors []string           `json:"sectors"`
}

// List handles GET /symbols
func (h *SymbolsHandler) List(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.directory.ListSymbols(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list symbols")
		respondError(w, http.StatusInternalServerError, "Failed to list symbols")
		return
	}

	respondJSON(w, http.StatusOK, SymbolsResponse{
		Symbols: append([]contracts.Symbol{}, symbols...),
		Sectors: sectors(symbols),
	})
}

// sectors returns the distinct non-empty sectors, sorted
func sectors(symbols []contracts.Symbol) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, s := range symbols {
		if s.Sector != "" && !seen[s.Sector] {
			seen[s.Sector] = true
			out = append(out, s.Sector)
		}
	}
	sort.Strings(out)
	return out
}
