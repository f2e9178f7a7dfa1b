package contracts

// Symbol is one entry of the symbol directory (reference data, read-only to the pipeline)
type Symbol struct {
	Symbol    string   `json:"symbol"`
	Name      string   `json:"name"`
	Sector    string   `json:"sector"`
	MarketCap *float64 `json:"marketCap"`
}
