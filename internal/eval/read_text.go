package eval

import (
	"fmt"
	"io"
	"os"

	"github.com/JonMunkholm/tableio/internal/format"
	"github.com/JonMunkholm/tableio/internal/plan"
	"github.com/JonMunkholm/tableio/internal/table"
)

// readText loads a delimited text file.
func readText(path string, opts plan.TextOptions) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := openText(f, opts.Encoding)
	if err != nil {
		return nil, err
	}
	return parseText(r, opts)
}

// parseText applies skip rows, header and row limit to a decoded stream.
func parseText(r io.Reader, opts plan.TextOptions) (*table.Table, error) {
	delim, quote := opts.Delimiter, opts.QuoteChar
	if delim == 0 {
		delim = format.DefaultDelimiter
	}
	if quote == 0 {
		quote = format.DefaultQuoteChar
	}
	dr := newDelimitedReader(r, delim, quote)

	for i := 0; i < opts.SkipRows; i++ {
		if _, err := dr.Read(); err == io.EOF {
			return &table.Table{}, nil
		} else if err != nil {
			return nil, err
		}
	}

	var header []string
	if !opts.NoHeader {
		rec, err := dr.Read()
		if err == io.EOF {
			return &table.Table{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		header = rec
	}

	var rows [][]string
	width := len(header)
	for opts.MaxRows == format.Unbounded || len(rows) < opts.MaxRows {
		rec, err := dr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(rows)+1, err)
		}
		if len(rec) > width {
			width = len(rec)
		}
		rows = append(rows, rec)
	}
	return buildTable(columnNames(header, width), rows)
}
