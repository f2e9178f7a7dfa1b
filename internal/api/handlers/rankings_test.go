package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/sp-ranking/internal/contracts"
)

func TestParseResultQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		check func(t *testing.T, q contracts.ResultQuery)
	}{
		{"defaults", "", func(t *testing.T, q contracts.ResultQuery) {
			assert.Equal(t, 0, q.Page)
			assert.Equal(t, defaultPageSize, q.PageSize)
			assert.Equal(t, contracts.SortCombinedRank, q.SortBy)
			assert.Equal(t, contracts.SortAsc, q.SortDir)
			assert.Equal(t, 25, q.PageSize)
			assert.Equal(t, contracts.ModeBoth, q.FormulaMode)
			assert.Nil(t, q.MarketCapMin)
		}},
		{"page size clamped high", "pageSize=5000", func(t *testing.T, q contracts.ResultQuery) {
			assert.Equal(t, maxPageSize, q.PageSize)
		}},
		{"page size clamped low", "pageSize=0&page=-3", func(t *testing.T, q contracts.ResultQuery) {
			assert.Equal(t, 1, q.PageSize)
			assert.Equal(t, 0, q.Page)
		}},
		{"sectors repeated and comma separated", "sectors=Energy,%20Utilities&sectors=Tech&sectors=", func(t *testing.T, q contracts.ResultQuery) {
			assert.Equal(t, []string{"Energy", "Utilities", "Tech"}, q.Sectors)
		}},
		{"numeric filters", "marketCapMin=1e9&marketCapMax=abc&completeness=80", func(t *testing.T, q contracts.ResultQuery) {
			if assert.NotNil(t, q.MarketCapMin) {
				assert.Equal(t, 1e9, *q.MarketCapMin)
			}
			assert.Nil(t, q.MarketCapMax, "malformed numbers are ignored")
			if assert.NotNil(t, q.MinCompleteness) {
				assert.Equal(t, 80.0, *q.MinCompleteness)
			}
		}},
		{"sort and mode", "sortBy=score_cramer&sortDir=DESC&formula_mode=cramer", func(t *testing.T, q contracts.ResultQuery) {
			assert.Equal(t, contracts.SortScoreCramer, q.SortBy)
			assert.Equal(t, contracts.SortDesc, q.SortDir)
			assert.Equal(t, contracts.ModeCramer, q.FormulaMode)
		}},
		{"unknown sort and mode fall back", "sortBy=name%20drop&formula_mode=graham", func(t *testing.T, q contracts.ResultQuery) {
			assert.Equal(t, contracts.SortCombinedRank, q.SortBy)
			assert.Equal(t, contracts.ModeBoth, q.FormulaMode)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := url.ParseQuery(tt.query)
			assert.NoError(t, err)
			tt.check(t, parseResultQuery(v))
		})
	}
}

func TestSectors(t *testing.T) {
	got := sectors([]contracts.Symbol{
		{Symbol: "A", Sector: "Utilities"},
		{Symbol: "B", Sector: "Energy"},
		{Symbol: "C", Sector: "Utilities"},
		{Symbol: "D"},
	})
	assert.Equal(t, []string{"Energy", "Utilities"}, got)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:3000"})
	assert.True(t, check(requestWithOrigin("")))
	assert.True(t, check(requestWithOrigin("http://localhost:3000")))
	assert.False(t, check(requestWithOrigin("http://evil.example")))

	assert.True(t, originChecker([]string{"*"})(requestWithOrigin("http://anything")))
}

func requestWithOrigin(origin string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/rankings/stream", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	return r
}
