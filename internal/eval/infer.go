package eval

// infer.go turns raw text cells into typed columns.
//
// Each column takes the narrowest type every non-missing cell parses as, in
// the order int, float, bool, timestamp, falling back to string. Empty cells
// and the NA marker are missing.

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/tableio/internal/table"
)

// numericRegex matches integers, decimals and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

var intRegex = regexp.MustCompile(`^[+-]?\d+$`)

// timestampLayouts are tried in order. Only four-digit years are accepted so
// that numeric-looking codes never become dates.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

func isMissing(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == "NA"
}

func parseInt(s string) (int64, bool) {
	if !intRegex.MatchString(s) {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

func parseFloat(s string) (float64, bool) {
	switch strings.ToLower(s) {
	case "inf", "+inf", "-inf", "nan":
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	if !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// parseBool accepts true/false spellings. 1/0 are left to the int check.
func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "t", "yes":
		return true, true
	case "false", "f", "no":
		return false, true
	}
	return false, false
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// inferType picks the column type for raw cells.
func inferType(cells []string) table.Type {
	candidates := []table.Type{table.Int, table.Float, table.Bool, table.Timestamp}
	seen := false
	for _, raw := range cells {
		if isMissing(raw) {
			continue
		}
		seen = true
		s := strings.TrimSpace(raw)
		kept := candidates[:0]
		for _, typ := range candidates {
			if parses(s, typ) {
				kept = append(kept, typ)
			}
		}
		candidates = kept
		if len(candidates) == 0 {
			return table.String
		}
	}
	if !seen {
		return table.String
	}
	return candidates[0]
}

func parses(s string, typ table.Type) bool {
	var ok bool
	switch typ {
	case table.Int:
		_, ok = parseInt(s)
	case table.Float:
		_, ok = parseFloat(s)
	case table.Bool:
		_, ok = parseBool(s)
	case table.Timestamp:
		_, ok = parseTimestamp(s)
	}
	return ok
}

// convertCells parses raw cells as typ. Missing cells become nil. String
// cells keep their original spacing.
func convertCells(cells []string, typ table.Type) []any {
	out := make([]any, len(cells))
	for i, raw := range cells {
		if isMissing(raw) {
			continue
		}
		s := strings.TrimSpace(raw)
		switch typ {
		case table.Int:
			out[i], _ = parseInt(s)
		case table.Float:
			out[i], _ = parseFloat(s)
		case table.Bool:
			out[i], _ = parseBool(s)
		case table.Timestamp:
			out[i], _ = parseTimestamp(s)
		default:
			out[i] = raw
		}
	}
	return out
}

// buildTable infers a type per column and assembles the table. Rows shorter
// than names are padded with missing cells.
func buildTable(names []string, rows [][]string) (*table.Table, error) {
	cols := make([]table.Column, len(names))
	for c, name := range names {
		cells := make([]string, len(rows))
		for r, row := range rows {
			if c < len(row) {
				cells[r] = row[c]
			}
		}
		typ := inferType(cells)
		cols[c] = table.Column{Name: name, Type: typ, Values: convertCells(cells, typ)}
	}
	return table.New(cols...)
}

// columnNames builds names from a header row, or X1..Xn without one. Blank
// names become Xi and duplicates get a ".n" suffix.
func columnNames(header []string, width int) []string {
	names := make([]string, width)
	seen := make(map[string]int, width)
	for i := range names {
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" {
			name = "X" + strconv.Itoa(i+1)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = name + "." + strconv.Itoa(n+1)
		} else {
			seen[name] = 0
		}
		names[i] = name
	}
	return names
}
