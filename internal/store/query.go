package store

import (
	"embed"
	"fmt"
	"strings"

	"github.com/wonny/sp-ranking/internal/contracts"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// schemaStatements returns the DDL for a driver split into single statements
func schemaStatements(driver string) ([]string, error) {
	raw, err := schemaFS.ReadFile("schema/" + driver + ".sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read %s schema: %w", driver, err)
	}

	var stmts []string
	for _, s := range strings.Split(string(raw), ";") {
		if s = strings.TrimSpace(s); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts, nil
}

const resultColumns = `run_id, symbol, name, sector, market_cap, score_buffett, score_cramer,
	combined_rank, completeness, last_updated`

const runColumns = `id, formula_mode, status, progress, COALESCE(message, ''), started_at, finished_at`

// placeholder renders the n-th (1-based) bind parameter of a dialect
type placeholder func(n int) string

func questionMark(int) string   { return "?" }
func dollarNumber(n int) string { return fmt.Sprintf("$%d", n) }

// resultFilter builds the WHERE clause shared by the count and page queries
func resultFilter(ph placeholder, runID int64, q contracts.ResultQuery) (string, []interface{}) {
	args := []interface{}{runID}
	conds := []string{"run_id = " + ph(1)}

	next := func(v interface{}) string {
		args = append(args, v)
		return ph(len(args))
	}

	if len(q.Sectors) > 0 {
		marks := make([]string, len(q.Sectors))
		for i, s := range q.Sectors {
			marks[i] = next(s)
		}
		conds = append(conds, "sector IN ("+strings.Join(marks, ", ")+")")
	}
	if q.MarketCapMin != nil {
		conds = append(conds, "market_cap >= "+next(*q.MarketCapMin))
	}
	if q.MarketCapMax != nil {
		conds = append(conds, "market_cap <= "+next(*q.MarketCapMax))
	}
	if q.MinCompleteness != nil {
		conds = append(conds, "completeness >= "+next(*q.MinCompleteness))
	}

	return strings.Join(conds, " AND "), args
}

// resultOrder renders ORDER BY for an already normalized query.
// NULLs go last in both directions; symbol breaks ties so pages are stable.
func resultOrder(q contracts.ResultQuery) string {
	col := string(contracts.ParseSortField(string(q.SortBy)))
	dir := "ASC"
	if q.SortDir == contracts.SortDesc {
		dir = "DESC"
	}

	order := fmt.Sprintf("(%s IS NULL), %s %s", col, col, dir)
	if col != string(contracts.SortSymbol) {
		order += ", symbol ASC"
	}
	return order
}

// pageQuery assembles the SELECT for one page
func pageQuery(ph placeholder, runID int64, q contracts.ResultQuery) (string, []interface{}) {
	where, args := resultFilter(ph, runID, q)

	args = append(args, q.PageSize, q.Offset())
	query := fmt.Sprintf(`SELECT %s FROM rankings WHERE %s ORDER BY %s LIMIT %s OFFSET %s`,
		resultColumns, where, resultOrder(q), ph(len(args)-1), ph(len(args)))
	return query, args
}

// countQuery assembles the COUNT over the filtered set
func countQuery(ph placeholder, runID int64, q contracts.ResultQuery) (string, []interface{}) {
	where, args := resultFilter(ph, runID, q)
	return "SELECT COUNT(*) FROM rankings WHERE " + where, args
}

// metricNames converts the closed enum to plain strings for IN lists
func metricNames(names []contracts.MetricName) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}
