package eval

import (
	"bufio"
	"io"
	"strings"

	"github.com/JonMunkholm/tableio/internal/format"
	"github.com/JonMunkholm/tableio/internal/plan"
	"github.com/JonMunkholm/tableio/internal/table"
)

// writeDelimited writes a header line and one line per row. Missing values
// are written as opts.NA and never quoted.
func writeDelimited(w io.Writer, tbl *table.Table, opts plan.WriteOptions) error {
	delim := opts.Delimiter
	if delim == 0 {
		delim = format.DefaultDelimiter
	}
	bw := bufio.NewWriter(w)
	tw := textWriter{w: bw, delim: delim, mode: opts.Quote}

	names := tbl.ColumnNames()
	for i, name := range names {
		tw.field(i, name)
	}
	tw.endLine()

	for r := 0; r < tbl.NumRows(); r++ {
		for c, col := range tbl.Columns {
			v := col.Values[r]
			if v == nil {
				tw.sep(c)
				bw.WriteString(opts.NA)
				continue
			}
			tw.field(c, table.FormatValue(v, opts.NA))
		}
		tw.endLine()
	}
	return bw.Flush()
}

type textWriter struct {
	w     *bufio.Writer
	delim rune
	mode  plan.QuoteMode
}

func (t textWriter) sep(col int) {
	if col > 0 {
		t.w.WriteRune(t.delim)
	}
}

func (t textWriter) field(col int, s string) {
	t.sep(col)
	if !t.needsQuote(s) {
		t.w.WriteString(s)
		return
	}
	t.w.WriteByte('"')
	t.w.WriteString(strings.ReplaceAll(s, `"`, `""`))
	t.w.WriteByte('"')
}

func (t textWriter) needsQuote(s string) bool {
	switch t.mode {
	case plan.QuoteAll:
		return true
	case plan.QuoteNone:
		return false
	}
	return strings.ContainsRune(s, t.delim) || strings.ContainsAny(s, "\"\r\n")
}

func (t textWriter) endLine() { t.w.WriteByte('\n') }
