package contracts

import "strings"

// SortField is a result column that may be used for ordering
type SortField string

const (
	SortSymbol       SortField = "symbol"
	SortName         SortField = "name"
	SortSector       SortField = "sector"
	SortMarketCap    SortField = "market_cap"
	SortScoreBuffett SortField = "score_buffett"
	SortScoreCramer  SortField = "score_cramer"
	SortCombinedRank SortField = "combined_rank"
	SortCompleteness SortField = "completeness"
	SortLastUpdated  SortField = "last_updated"
)

// ParseSortField maps a wire value onto the allow-list; anything else falls back to combined rank
func ParseSortField(s string) SortField {
	switch f := SortField(strings.TrimSpace(s)); f {
	case SortSymbol, SortName, SortSector, SortMarketCap, SortScoreBuffett,
		SortScoreCramer, SortCombinedRank, SortCompleteness, SortLastUpdated:
		return f
	}
	return SortCombinedRank
}

// SortDirection orders results
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ParseSortDirection is ascending unless s is explicitly "desc"
func ParseSortDirection(s string) SortDirection {
	if strings.EqualFold(strings.TrimSpace(s), string(SortDesc)) {
		return SortDesc
	}
	return SortAsc
}

// ResultQuery filters, orders and pages a run's results
type ResultQuery struct {
	FormulaMode     FormulaMode // empty: any mode
	Sectors         []string
	MarketCapMin    *float64 // inclusive
	MarketCapMax    *float64 // inclusive
	MinCompleteness *float64
	SortBy          SortField
	SortDir         SortDirection
	Page            int // zero-based
	PageSize        int
}

// Normalized returns a copy with safe defaults applied
func (q ResultQuery) Normalized() ResultQuery {
	q.SortBy = ParseSortField(string(q.SortBy))
	q.SortDir = ParseSortDirection(string(q.SortDir))
	if q.Page < 0 {
		q.Page = 0
	}
	if q.PageSize < 1 {
		q.PageSize = 1
	}

	var sectors []string
	for _, s := range q.Sectors {
		if s = strings.TrimSpace(s); s != "" {
			sectors = append(sectors, s)
		}
	}
	q.Sectors = sectors
	return q
}

// Offset is the number of rows skipped before the page
func (q ResultQuery) Offset() int {
	return q.Page * q.PageSize
}
