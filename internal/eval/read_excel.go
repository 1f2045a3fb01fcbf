package eval

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/tableio/internal/format"
	"github.com/JonMunkholm/tableio/internal/plan"
	"github.com/JonMunkholm/tableio/internal/table"
)

// ErrSheetNotFound is returned when the requested worksheet does not exist.
var ErrSheetNotFound = errors.New("sheet not found")

// readExcel loads one worksheet, optionally limited to a cell range.
func readExcel(path string, opts plan.SpreadsheetOptions) (*table.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheet, err := resolveSheet(f.GetSheetList(), opts.Sheet)
	if err != nil {
		return nil, err
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("sheet %q: %w", sheet, err)
	}
	if opts.Range != "" {
		if rows, err = sliceRange(rows, opts.Range); err != nil {
			return nil, err
		}
	}
	return shapeRows(rows, opts.SkipRows, opts.MaxRows, !opts.NoHeader)
}

func resolveSheet(sheets []string, ref plan.SheetRef) (string, error) {
	if len(sheets) == 0 {
		return "", fmt.Errorf("%w: workbook has no sheets", ErrSheetNotFound)
	}
	switch {
	case ref.Name != "":
		for _, s := range sheets {
			if strings.EqualFold(s, ref.Name) {
				return s, nil
			}
		}
		return "", fmt.Errorf("%w: %q (have %s)", ErrSheetNotFound, ref.Name, strings.Join(sheets, ", "))
	case ref.Index > 0:
		if ref.Index > len(sheets) {
			return "", fmt.Errorf("%w: index %d out of range (workbook has %d)", ErrSheetNotFound, ref.Index, len(sheets))
		}
		return sheets[ref.Index-1], nil
	default:
		return sheets[0], nil
	}
}

// sliceRange cuts rows to an A1-style range. A single cell reference reads
// from that cell to the end of the data.
func sliceRange(rows [][]string, ref string) ([][]string, error) {
	from, to, _ := strings.Cut(strings.ToUpper(strings.TrimSpace(ref)), ":")
	c1, r1, err := excelize.CellNameToCoordinates(from)
	if err != nil {
		return nil, fmt.Errorf("cell range %q: %w", ref, err)
	}
	c2, r2 := -1, len(rows)
	if to != "" {
		if c2, r2, err = excelize.CellNameToCoordinates(to); err != nil {
			return nil, fmt.Errorf("cell range %q: %w", ref, err)
		}
	}
	if r2 < r1 || (c2 != -1 && c2 < c1) {
		return nil, fmt.Errorf("cell range %q is inverted", ref)
	}

	var out [][]string
	for r := r1 - 1; r < r2; r++ {
		var row []string
		if r < len(rows) {
			row = rows[r]
		}
		width := c2 - c1 + 1
		if c2 == -1 {
			width = len(row) - (c1 - 1)
		}
		cells := make([]string, max(width, 0))
		for c := range cells {
			if src := c1 - 1 + c; src < len(row) {
				cells[c] = row[src]
			}
		}
		out = append(out, cells)
	}
	return out, nil
}

// shapeRows applies skip, header and row limit to already-split rows.
func shapeRows(rows [][]string, skip, maxRows int, header bool) (*table.Table, error) {
	if skip >= len(rows) {
		return &table.Table{}, nil
	}
	rows = rows[skip:]

	var names []string
	if header {
		names, rows = rows[0], rows[1:]
	}
	if maxRows != format.Unbounded && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	width := len(names)
	for _, row := range rows {
		width = max(width, len(row))
	}
	return buildTable(columnNames(names, width), rows)
}
