package scoring

import (
	"math"

	"github.com/wonny/sp-ranking/internal/contracts"
)

// Formula maps a metrics bag to a score. Formulas must be pure.
type Formula func(bag contracts.MetricsBag) float64

// Scores is the outcome of scoring one symbol. A nil score means the formula was not requested.
type Scores struct {
	Buffett      *float64
	Cramer       *float64
	Completeness float64
}

// Engine applies the configured formulas according to a run's formula mode
// ⭐ SSOT: score computation lives here only
type Engine struct {
	buffett Formula
	cramer  Formula
}

// NewEngine returns an engine with the default quality and value formulas
func NewEngine() *Engine {
	return &Engine{buffett: Buffett, cramer: Cramer}
}

// WithFormulas swaps the formulas; nil keeps the current one
func (e *Engine) WithFormulas(buffett, cramer Formula) *Engine {
	out := *e
	if buffett != nil {
		out.buffett = buffett
	}
	if cramer != nil {
		out.cramer = cramer
	}
	return &out
}

// Score computes the requested scores (3 decimals) and completeness (1 decimal)
func (e *Engine) Score(bag contracts.MetricsBag, mode contracts.FormulaMode) Scores {
	s := Scores{Completeness: Completeness(bag)}

	if mode.WantsBuffett() {
		v := round(e.buffett(bag), 3)
		s.Buffett = &v
	}
	if mode.WantsCramer() {
		v := round(e.cramer(bag), 3)
		s.Cramer = &v
	}
	return s
}

// Buffett is the quality tilt: weighted positive ROE/ROA/margin plus a credit
// term that rewards debt-to-equity below 50.
func Buffett(bag contracts.MetricsBag) float64 {
	score := 0.4*positive(bag, contracts.MetricROE) +
		0.3*positive(bag, contracts.MetricROA) +
		0.3*positive(bag, contracts.MetricNetMargin)

	if de, ok := bag.Value(contracts.MetricDebtToEquity); ok {
		score += math.Max(0, 50-clamp(de, 0, 50))
	}
	return score
}

// Cramer is the value tilt: a banded PE bonus plus positive net margin
func Cramer(bag contracts.MetricsBag) float64 {
	score := 0.0

	if pe, ok := bag.Value(contracts.MetricPE); ok && pe > 0 {
		switch {
		case pe < 10:
			score += 50
		case pe < 20:
			score += 40
		case pe < 30:
			score += 30
		case pe < 40:
			score += 20
		default:
			score += 10
		}
	}

	return score + positive(bag, contracts.MetricNetMargin)
}

// Completeness is the share of scoring metrics carrying a number, in percent
func Completeness(bag contracts.MetricsBag) float64 {
	total := len(contracts.ScoringMetrics)
	return round(100*float64(bag.PresentCount())/float64(total), 1)
}

func positive(bag contracts.MetricsBag, name contracts.MetricName) float64 {
	v, ok := bag.Value(name)
	if !ok {
		return 0
	}
	return math.Max(0, v)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
