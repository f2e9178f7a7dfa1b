package export

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/wonny/sp-ranking/internal/contracts"
)

const (
	sheetName     = "Rankings"
	maxColumnWide = 60
)

// WriteXLSX writes a single-sheet workbook with auto-sized columns
func WriteXLSX(w io.Writer, rows []contracts.ScoreResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	widths := make([]int, len(Header))
	track := func(cells []string) {
		for i, c := range cells {
			if n := utf8.RuneCountInString(c); n > widths[i] {
				widths[i] = n
			}
		}
	}

	if err := f.SetSheetRow(sheetName, "A1", &Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	track(Header)

	for i, r := range rows {
		cells := record(r)
		track(cells)

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &[]interface{}{
			r.RunID, r.Symbol, r.Name, r.Sector, nullable(r.MarketCap),
			nullable(r.ScoreBuffett), nullable(r.ScoreCramer), r.CombinedRank,
			r.Completeness, cells[9],
		}); err != nil {
			return fmt.Errorf("failed to write row %s: %w", r.Symbol, err)
		}
	}

	for i, wdt := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if wdt+2 > maxColumnWide {
			wdt = maxColumnWide - 2
		}
		if err := f.SetColWidth(sheetName, col, col, float64(wdt+2)); err != nil {
			return fmt.Errorf("failed to size column %s: %w", col, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// nullable leaves the cell empty for nil
func nullable(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
