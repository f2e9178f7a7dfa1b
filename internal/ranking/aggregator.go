package ranking

import (
	"sort"

	"github.com/wonny/sp-ranking/internal/contracts"
	"github.com/wonny/sp-ranking/pkg/logger"
)

// Entry is one symbol's scores in input order
type Entry struct {
	Symbol  string
	Buffett *float64
	Cramer  *float64
}

// Ranked carries per-formula ranks (0 when the formula was not computed) and the combined rank
type Ranked struct {
	Symbol       string
	BuffettRank  int
	CramerRank   int
	CombinedRank int
}

// Aggregator turns per-formula scores into ranks
// ⭐ SSOT: rank assignment and tie-break policy live here only
type Aggregator struct {
	logger *logger.Logger
}

// NewAggregator creates a new aggregator
func NewAggregator(log *logger.Logger) *Aggregator {
	return &Aggregator{logger: log.WithModule("ranking")}
}

// Aggregate ranks entries under mode. Output is parallel to the input.
// Single mode: combined = that formula's rank (dense 1..N).
// Both: combined = buffett rank + cramer rank; equal sums are kept as ties.
func (a *Aggregator) Aggregate(entries []Entry, mode contracts.FormulaMode) []Ranked {
	out := make([]Ranked, len(entries))
	for i, e := range entries {
		out[i].Symbol = e.Symbol
	}
	if len(entries) == 0 {
		return out
	}

	if mode.WantsBuffett() {
		scores := make([]*float64, len(entries))
		for i, e := range entries {
			scores[i] = e.Buffett
		}
		for i, r := range Ranks(scores) {
			out[i].BuffettRank = r
		}
	}

	if mode.WantsCramer() {
		scores := make([]*float64, len(entries))
		for i, e := range entries {
			scores[i] = e.Cramer
		}
		for i, r := range Ranks(scores) {
			out[i].CramerRank = r
		}
	}

	for i := range out {
		switch mode {
		case contracts.ModeBuffett:
			out[i].CombinedRank = out[i].BuffettRank
		case contracts.ModeCramer:
			out[i].CombinedRank = out[i].CramerRank
		default:
			out[i].CombinedRank = out[i].BuffettRank + out[i].CramerRank
		}
	}

	a.logger.WithFields(map[string]interface{}{
		"symbols":      len(entries),
		"formula_mode": mode,
	}).Debug("Ranks aggregated")

	return out
}

// Ranks assigns 1..N by descending score. Nil sorts last; equal scores keep
// input order and still receive distinct consecutive ranks.
func Ranks(scores []*float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(x, y int) bool {
		a, b := scores[order[x]], scores[order[y]]
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a > *b
		}
	})

	ranks := make([]int, len(scores))
	for pos, idx := range order {
		ranks[idx] = pos + 1
	}
	return ranks
}
