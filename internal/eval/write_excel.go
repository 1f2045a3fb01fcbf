package eval

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/tableio/internal/plan"
	"github.com/JonMunkholm/tableio/internal/table"
)

// writeWorkbook writes one sheet per entry, in order. Timestamps are stored
// as RFC 3339 text so they read back as timestamps.
func writeWorkbook(w io.Writer, sheets []plan.Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	first := f.GetSheetName(0)
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(first, s.Name); err != nil {
				return fmt.Errorf("sheet %q: %w", s.Name, err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return fmt.Errorf("sheet %q: %w", s.Name, err)
		}
		if err := fillSheet(f, s.Name, s.Table); err != nil {
			return fmt.Errorf("sheet %q: %w", s.Name, err)
		}
	}
	f.SetActiveSheet(0)
	return f.Write(w)
}

func fillSheet(f *excelize.File, sheet string, tbl *table.Table) error {
	header := make([]any, tbl.NumCols())
	for i, name := range tbl.ColumnNames() {
		header[i] = name
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for r := 0; r < tbl.NumRows(); r++ {
		row := tbl.Row(r)
		for i, v := range row {
			if ts, ok := v.(time.Time); ok {
				row[i] = ts.Format(time.RFC3339Nano)
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
