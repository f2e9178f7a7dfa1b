package contracts

import "time"

// ScoreResult is one persisted ranking row
type ScoreResult struct {
	RunID        int64     `json:"run_id"`
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name"`
	Sector       string    `json:"sector"`
	MarketCap    *float64  `json:"market_cap"`
	ScoreBuffett *float64  `json:"score_buffett"`
	ScoreCramer  *float64  `json:"score_cramer"`
	CombinedRank int       `json:"combined_rank"`
	Completeness float64   `json:"completeness"`
	LastUpdated  time.Time `json:"last_updated"`
}

// ResultPage is a filtered, sorted page of a run's results
type ResultPage struct {
	Items []ScoreResult `json:"items"`
	Total int           `json:"total"`
	RunID *int64        `json:"run_id"`
}
