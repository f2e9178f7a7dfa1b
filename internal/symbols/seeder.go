package symbols

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/sp-ranking/internal/contracts"
	"github.com/wonny/sp-ranking/pkg/httputil"
	"github.com/wonny/sp-ranking/pkg/logger"
)

// ErrNoTable means the page had no recognizable constituents table
var ErrNoTable = errors.New("constituents table not found")

// Seeder fills the symbol directory from the S&P 500 constituents page.
// ⭐ SSOT: the only writer of the symbols table
type Seeder struct {
	http      *httputil.Client
	writer    contracts.SymbolWriter
	sourceURL string
	logger    *logger.Logger
}

// NewSeeder creates a seeder
func NewSeeder(httpClient *httputil.Client, writer contracts.SymbolWriter, sourceURL string, log *logger.Logger) *Seeder {
	return &Seeder{
		http:      httpClient,
		writer:    writer,
		sourceURL: sourceURL,
		logger:    log.WithModule("symbols"),
	}
}

// Seed downloads the constituents and upserts them
func (s *Seeder) Seed(ctx context.Context) (int, error) {
	list, err := s.Fetch(ctx)
	if err != nil {
		return 0, err
	}

	n, err := s.writer.UpsertSymbols(ctx, list)
	if err != nil {
		return 0, fmt.Errorf("failed to store symbols: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"source":  s.sourceURL,
		"symbols": n,
	}).Info("Symbol directory seeded")
	return n, nil
}

// Fetch downloads and parses the constituents page
func (s *Seeder) Fetch(ctx context.Context) ([]contracts.Symbol, error) {
	resp, err := s.http.Get(ctx, s.sourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download constituents: %w", err)
	}
	defer resp.Body.Close()

	return Parse(resp.Body)
}

// Parse reads the first table whose header has Symbol, Security and GICS Sector columns
func Parse(r io.Reader) ([]contracts.Symbol, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	var (
		out   []contracts.Symbol
		found bool
	)

	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		cols := columnIndex(table)
		symCol, okSym := cols["symbol"]
		nameCol, okName := cols["security"]
		sectorCol, okSector := cols["gics sector"]
		if !okSym || !okName || !okSector {
			return true
		}
		found = true

		seen := map[string]bool{}
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() <= max(symCol, nameCol, sectorCol) {
				return
			}

			sym := normalizeSymbol(cells.Eq(symCol).Text())
			if sym == "" || seen[sym] {
				return
			}
			seen[sym] = true

			out = append(out, contracts.Symbol{
				Symbol: sym,
				Name:   strings.TrimSpace(cells.Eq(nameCol).Text()),
				Sector: strings.TrimSpace(cells.Eq(sectorCol).Text()),
			})
		})
		return false
	})

	if !found {
		return nil, ErrNoTable
	}
	return out, nil
}

// columnIndex maps lower-cased header text to its column position
func columnIndex(table *goquery.Selection) map[string]int {
	cols := map[string]int{}
	table.Find("tr").First().Find("th").Each(func(i int, th *goquery.Selection) {
		cols[strings.ToLower(strings.TrimSpace(th.Text()))] = i
	})
	return cols
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
