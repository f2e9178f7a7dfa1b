package export

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/sp-ranking/internal/contracts"
	"github.com/wonny/sp-ranking/pkg/logger"
)

// Format is a supported download format
type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "excel"
)

// ParseFormat accepts csv, excel or xlsx; empty means excel
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "", "excel", "xlsx":
		return FormatExcel, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType is the HTTP media type of the format
func (f Format) ContentType() string {
	if f == FormatExcel {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename names the download for a run
func (f Format) Filename(runID int64) string {
	ext := "csv"
	if f == FormatExcel {
		ext = "xlsx"
	}
	return fmt.Sprintf("rankings_run_%d.%s", runID, ext)
}

// Header is the persisted column order
var Header = []string{
	"run_id", "symbol", "name", "sector", "market_cap",
	"score_buffett", "score_cramer", "combined_rank", "completeness", "last_updated",
}

// ResultReader pages a run's results
type ResultReader interface {
	QueryResults(ctx context.Context, runID int64, q contracts.ResultQuery) ([]contracts.ScoreResult, int, error)
}

const exportPageSize = 1000

// Exporter writes whole runs as files
type Exporter struct {
	results ResultReader
	maxRows int
	logger  *logger.Logger
}

// New creates an exporter; maxRows <= 0 means no cap
func New(results ResultReader, maxRows int, log *logger.Logger) *Exporter {
	return &Exporter{
		results: results,
		maxRows: maxRows,
		logger:  log.WithModule("export"),
	}
}

// Rows loads every row of a run ordered by combined rank, up to the row cap
func (e *Exporter) Rows(ctx context.Context, runID int64) ([]contracts.ScoreResult, error) {
	var rows []contracts.ScoreResult

	for page := 0; ; page++ {
		items, total, err := e.results.QueryResults(ctx, runID, contracts.ResultQuery{
			SortBy:   contracts.SortCombinedRank,
			SortDir:  contracts.SortAsc,
			Page:     page,
			PageSize: exportPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load results: %w", err)
		}

		rows = append(rows, items...)
		if e.maxRows > 0 && len(rows) >= e.maxRows {
			e.logger.WithFields(map[string]interface{}{
				"run_id": runID,
				"total":  total,
				"cap":    e.maxRows,
			}).Warn("Export truncated")
			return rows[:e.maxRows], nil
		}
		if len(items) < exportPageSize || len(rows) >= total {
			return rows, nil
		}
	}
}

// Write streams a run in the requested format and returns the row count
func (e *Exporter) Write(ctx context.Context, w io.Writer, runID int64, format Format) (int, error) {
	rows, err := e.Rows(ctx, runID)
	if err != nil {
		return 0, err
	}

	switch format {
	case FormatExcel:
		err = WriteXLSX(w, rows)
	default:
		err = WriteCSV(w, rows)
	}
	if err != nil {
		return 0, err
	}

	e.logger.WithFields(map[string]interface{}{
		"run_id": runID,
		"format": format,
		"rows":   len(rows),
	}).Info("Run exported")
	return len(rows), nil
}

// record renders one row as strings; null values are empty cells
func record(r contracts.ScoreResult) []string {
	return []string{
		strconv.FormatInt(r.RunID, 10),
		r.Symbol,
		r.Name,
		r.Sector,
		formatFloat(r.MarketCap),
		formatFloat(r.ScoreBuffett),
		formatFloat(r.ScoreCramer),
		strconv.Itoa(r.CombinedRank),
		strconv.FormatFloat(r.Completeness, 'f', 1, 64),
		r.LastUpdated.UTC().Format(time.RFC3339),
	}
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
