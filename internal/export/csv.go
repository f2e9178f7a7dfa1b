package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/wonny/sp-ranking/internal/contracts"
)

// WriteCSV writes the header and one line per row
func WriteCSV(w io.Writer, rows []contracts.ScoreResult) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(record(r)); err != nil {
			return fmt.Errorf("failed to write csv row %s: %w", r.Symbol, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
