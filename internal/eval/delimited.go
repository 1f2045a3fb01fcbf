package eval

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// errUnterminatedQuote is wrapped by parse errors for a quoted field left open at EOF.
var errUnterminatedQuote = errors.New("unterminated quoted field")

// delimitedReader splits text into records using an arbitrary single-rune
// delimiter and quote character. A doubled quote inside a quoted field is a
// literal quote. Quoted fields may span lines. Blank lines are skipped.
type delimitedReader struct {
	r     *bufio.Reader
	delim rune
	quote rune
	line  int
}

func newDelimitedReader(r io.Reader, delim, quote rune) *delimitedReader {
	return &delimitedReader{r: bufio.NewReader(r), delim: delim, quote: quote, line: 1}
}

// Read returns the next record or io.EOF.
func (d *delimitedReader) Read() ([]string, error) {
	for {
		rec, err := d.readRecord()
		if err != nil {
			return nil, err
		}
		if len(rec) == 1 && rec[0] == "" {
			continue
		}
		return rec, nil
	}
}

func (d *delimitedReader) readRecord() ([]string, error) {
	var (
		fields []string
		field  strings.Builder
		start  = true
	)
	for {
		c, _, err := d.r.ReadRune()
		if err == io.EOF {
			if start && len(fields) == 0 && field.Len() == 0 {
				return nil, io.EOF
			}
			return append(fields, field.String()), nil
		}
		if err != nil {
			return nil, err
		}

		switch {
		case start && c == d.quote:
			if err := d.readQuoted(&field); err != nil {
				return nil, err
			}
			start = false
		case c == d.delim:
			fields = append(fields, field.String())
			field.Reset()
			start = true
		case c == '\n' || c == '\r':
			if c == '\r' {
				if next, _, err := d.r.ReadRune(); err == nil && next != '\n' {
					_ = d.r.UnreadRune()
				}
			}
			d.line++
			return append(fields, field.String()), nil
		default:
			field.WriteRune(c)
			start = false
		}
	}
}

// readQuoted consumes a quoted field body up to and including its closing quote.
func (d *delimitedReader) readQuoted(field *strings.Builder) error {
	startLine := d.line
	for {
		c, _, err := d.r.ReadRune()
		if err == io.EOF {
			return fmt.Errorf("line %d: %w", startLine, errUnterminatedQuote)
		}
		if err != nil {
			return err
		}
		if c == d.quote {
			next, _, err := d.r.ReadRune()
			if err == nil && next == d.quote {
				field.WriteRune(d.quote)
				continue
			}
			if err == nil {
				_ = d.r.UnreadRune()
			}
			return nil
		}
		if c == '\n' {
			d.line++
		}
		field.WriteRune(c)
	}
}
