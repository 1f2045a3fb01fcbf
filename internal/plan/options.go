package plan

// options.go defines the per-category read options.
//
// Options are a tagged variant: each category that takes options has its own
// struct with an enumerated field set, and decoding from JSON (persisted node
// state, HTTP bodies) rejects keys a category does not know. Columnar and
// generic-importer sources take no options.

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/JonMunkholm/tableio/internal/format"
)

// ErrUnknownOption is wrapped by decode errors for keys a category does not accept.
var ErrUnknownOption = errors.New("unknown option")

// ErrInvalidOption is wrapped by decode and validation errors for bad values.
var ErrInvalidOption = errors.New("invalid option")

// TextOptions configure delimited text readers.
type TextOptions struct {
	Delimiter rune
	QuoteChar rune
	Encoding  string
	SkipRows  int
	// MaxRows caps the number of data rows; format.Unbounded reads all.
	MaxRows int
	// NoHeader treats the first row as data. The zero value reads a header.
	NoHeader bool
}

// SheetRef selects a worksheet by name or 1-based index. The zero value
// selects the first sheet.
type SheetRef struct {
	Name  string
	Index int
}

// IsFirst reports whether the reference selects the first sheet by default.
func (s SheetRef) IsFirst() bool { return s.Name == "" && s.Index <= 1 }

func (s SheetRef) String() string {
	switch {
	case s.Name != "":
		return strconv.Quote(s.Name)
	case s.Index > 0:
		return strconv.Itoa(s.Index)
	default:
		return "1"
	}
}

// SpreadsheetOptions configure the workbook reader.
type SpreadsheetOptions struct {
	Sheet SheetRef
	// Range is an A1-style cell range such as "B2:D20"; empty reads all cells.
	Range    string
	SkipRows int
	MaxRows  int
	NoHeader bool
}

// ReadOptions carries the options for every category; a load only uses the
// member matching its source's category.
type ReadOptions struct {
	Text        TextOptions
	Spreadsheet SpreadsheetOptions
}

// DefaultTextOptions returns the documented text defaults.
func DefaultTextOptions() TextOptions {
	return TextOptions{
		Delimiter: format.DefaultDelimiter,
		QuoteChar: format.DefaultQuoteChar,
		Encoding:  format.DefaultEncoding,
		SkipRows:  format.DefaultSkipRows,
		MaxRows:   format.Unbounded,
	}
}

// DefaultSpreadsheetOptions returns the documented spreadsheet defaults.
func DefaultSpreadsheetOptions() SpreadsheetOptions {
	return SpreadsheetOptions{
		SkipRows: format.DefaultSkipRows,
		MaxRows:  format.Unbounded,
	}
}

// DefaultReadOptions returns defaults for every category.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{Text: DefaultTextOptions(), Spreadsheet: DefaultSpreadsheetOptions()}
}

// withDefaults fills unset delimiter, quote and encoding.
func (o TextOptions) withDefaults() TextOptions {
	if o.Delimiter == 0 {
		o.Delimiter = format.DefaultDelimiter
	}
	if o.QuoteChar == 0 {
		o.QuoteChar = format.DefaultQuoteChar
	}
	if strings.TrimSpace(o.Encoding) == "" {
		o.Encoding = format.DefaultEncoding
	}
	return o
}

// Validate checks value ranges.
func (o TextOptions) Validate() error {
	if o.SkipRows < 0 {
		return fmt.Errorf("%w: skip_rows must be non-negative, got %d", ErrInvalidOption, o.SkipRows)
	}
	if o.MaxRows < 0 {
		return fmt.Errorf("%w: max_rows must be positive or unbounded, got %d", ErrInvalidOption, o.MaxRows)
	}
	if o.Delimiter == '\n' || o.Delimiter == '\r' || o.Delimiter == utf8.RuneError {
		return fmt.Errorf("%w: delimiter %q", ErrInvalidOption, o.Delimiter)
	}
	if o.QuoteChar == o.Delimiter && o.QuoteChar != 0 {
		return fmt.Errorf("%w: quote_char equals delimiter", ErrInvalidOption)
	}
	return nil
}

// Validate checks value ranges.
func (o SpreadsheetOptions) Validate() error {
	if o.SkipRows < 0 {
		return fmt.Errorf("%w: skip_rows must be non-negative, got %d", ErrInvalidOption, o.SkipRows)
	}
	if o.MaxRows < 0 {
		return fmt.Errorf("%w: max_rows must be positive or unbounded, got %d", ErrInvalidOption, o.MaxRows)
	}
	if o.Sheet.Index < 0 {
		return fmt.Errorf("%w: sheet index must be 1-based, got %d", ErrInvalidOption, o.Sheet.Index)
	}
	return nil
}

// Validate checks every member.
func (o ReadOptions) Validate() error {
	if err := o.Text.Validate(); err != nil {
		return fmt.Errorf("text: %w", err)
	}
	if err := o.Spreadsheet.Validate(); err != nil {
		return fmt.Errorf("spreadsheet: %w", err)
	}
	return nil
}

// JSON forms. Runes travel as one-character strings, max_rows as a number or
// "unbounded", sheet as a name or a 1-based number.

type textJSON struct {
	Delimiter     string `json:"delimiter"`
	QuoteChar     string `json:"quote_char"`
	Encoding      string `json:"encoding"`
	SkipRows      int    `json:"skip_rows"`
	MaxRows       any    `json:"max_rows"`
	HeaderPresent bool   `json:"header_present"`
}

type spreadsheetJSON struct {
	Sheet         any    `json:"sheet"`
	CellRange     string `json:"cell_range"`
	SkipRows      int    `json:"skip_rows"`
	MaxRows       any    `json:"max_rows"`
	HeaderPresent bool   `json:"header_present"`
}

var (
	textKeys        = []string{"delimiter", "quote_char", "encoding", "skip_rows", "max_rows", "header_present"}
	spreadsheetKeys = []string{"sheet", "cell_range", "skip_rows", "max_rows", "header_present"}
	readOptionKeys  = []string{"text", "spreadsheet"}
)

func maxRowsJSON(n int) any {
	if n == format.Unbounded {
		return "unbounded"
	}
	return n
}

// MarshalJSON implements json.Marshaler.
func (o TextOptions) MarshalJSON() ([]byte, error) {
	o = o.withDefaults()
	return json.Marshal(textJSON{
		Delimiter:     string(o.Delimiter),
		QuoteChar:     string(o.QuoteChar),
		Encoding:      o.Encoding,
		SkipRows:      o.SkipRows,
		MaxRows:       maxRowsJSON(o.MaxRows),
		HeaderPresent: !o.NoHeader,
	})
}

// UnmarshalJSON decodes on top of the defaults; unknown keys are rejected.
func (o *TextOptions) UnmarshalJSON(data []byte) error {
	fields, err := decodeOptionMap(data, textKeys)
	if err != nil {
		return err
	}
	out := DefaultTextOptions()
	for key, raw := range fields {
		switch key {
		case "delimiter":
			out.Delimiter, err = decodeRune(key, raw)
		case "quote_char":
			out.QuoteChar, err = decodeRune(key, raw)
		case "encoding":
			err = json.Unmarshal(raw, &out.Encoding)
		case "skip_rows":
			err = json.Unmarshal(raw, &out.SkipRows)
		case "max_rows":
			out.MaxRows, err = decodeMaxRows(raw)
		case "header_present":
			out.NoHeader, err = decodeNoHeader(raw)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*o = out.withDefaults()
	return nil
}

// MarshalJSON implements json.Marshaler.
func (o SpreadsheetOptions) MarshalJSON() ([]byte, error) {
	var sheet any = "first"
	switch {
	case o.Sheet.Name != "":
		sheet = o.Sheet.Name
	case o.Sheet.Index > 0:
		sheet = o.Sheet.Index
	}
	cellRange := o.Range
	if cellRange == "" {
		cellRange = "all"
	}
	return json.Marshal(spreadsheetJSON{
		Sheet:         sheet,
		CellRange:     cellRange,
		SkipRows:      o.SkipRows,
		MaxRows:       maxRowsJSON(o.MaxRows),
		HeaderPresent: !o.NoHeader,
	})
}

// UnmarshalJSON decodes on top of the defaults; unknown keys are rejected.
func (o *SpreadsheetOptions) UnmarshalJSON(data []byte) error {
	fields, err := decodeOptionMap(data, spreadsheetKeys)
	if err != nil {
		return err
	}
	out := DefaultSpreadsheetOptions()
	for key, raw := range fields {
		switch key {
		case "sheet":
			out.Sheet, err = decodeSheet(raw)
		case "cell_range":
			err = json.Unmarshal(raw, &out.Range)
			if strings.EqualFold(strings.TrimSpace(out.Range), "all") {
				out.Range = ""
			}
		case "skip_rows":
			err = json.Unmarshal(raw, &out.SkipRows)
		case "max_rows":
			out.MaxRows, err = decodeMaxRows(raw)
		case "header_present":
			out.NoHeader, err = decodeNoHeader(raw)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*o = out
	return nil
}

type readOptionsJSON struct {
	Text        TextOptions        `json:"text"`
	Spreadsheet SpreadsheetOptions `json:"spreadsheet"`
}

// MarshalJSON implements json.Marshaler.
func (o ReadOptions) MarshalJSON() ([]byte, error) {
	return json.Marshal(readOptionsJSON{Text: o.Text, Spreadsheet: o.Spreadsheet})
}

// UnmarshalJSON decodes each category member; missing members keep defaults.
func (o *ReadOptions) UnmarshalJSON(data []byte) error {
	fields, err := decodeOptionMap(data, readOptionKeys)
	if err != nil {
		return err
	}
	out := DefaultReadOptions()
	if raw, ok := fields["text"]; ok {
		if err := json.Unmarshal(raw, &out.Text); err != nil {
			return fmt.Errorf("text options: %w", err)
		}
	}
	if raw, ok := fields["spreadsheet"]; ok {
		if err := json.Unmarshal(raw, &out.Spreadsheet); err != nil {
			return fmt.Errorf("spreadsheet options: %w", err)
		}
	}
	*o = out
	return nil
}

func decodeOptionMap(data []byte, allowed []string) (map[string]json.RawMessage, error) {
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOption, err)
	}
	var unknown []string
	for key := range fields {
		if !contains(allowed, key) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s (accepted: %s)", ErrUnknownOption,
			strings.Join(unknown, ", "), strings.Join(allowed, ", "))
	}
	return fields, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ParseRune accepts a single character, the escape `\t`, or the word "tab".
func ParseRune(s string) (rune, error) {
	switch s {
	case `\t`, "tab", "TAB":
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("%w: want a single character, got %q", ErrInvalidOption, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// decodeNoHeader inverts the header_present flag.
func decodeNoHeader(raw json.RawMessage) (bool, error) {
	var present bool
	if err := json.Unmarshal(raw, &present); err != nil {
		return false, err
	}
	return !present, nil
}

func decodeRune(key string, raw json.RawMessage) (rune, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("%w: %s must be a string", ErrInvalidOption, key)
	}
	return ParseRune(s)
}

func decodeMaxRows(raw json.RawMessage) (int, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case nil:
		return format.Unbounded, nil
	case string:
		if strings.EqualFold(x, "unbounded") || strings.EqualFold(x, "inf") {
			return format.Unbounded, nil
		}
		n, err := strconv.Atoi(x)
		if err != nil {
			return 0, fmt.Errorf("%w: max_rows %q", ErrInvalidOption, x)
		}
		return positiveRows(n)
	case float64:
		if x != float64(int(x)) {
			return 0, fmt.Errorf("%w: max_rows must be an integer", ErrInvalidOption)
		}
		return positiveRows(int(x))
	default:
		return 0, fmt.Errorf("%w: max_rows must be a number or \"unbounded\"", ErrInvalidOption)
	}
}

func positiveRows(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: max_rows must be positive, got %d", ErrInvalidOption, n)
	}
	return n, nil
}

func decodeSheet(raw json.RawMessage) (SheetRef, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return SheetRef{}, err
	}
	switch x := v.(type) {
	case nil:
		return SheetRef{}, nil
	case string:
		if strings.EqualFold(x, "first") || x == "" {
			return SheetRef{}, nil
		}
		return SheetRef{Name: x}, nil
	case float64:
		if x < 1 || x != float64(int(x)) {
			return SheetRef{}, fmt.Errorf("%w: sheet index must be a positive integer", ErrInvalidOption)
		}
		return SheetRef{Index: int(x)}, nil
	default:
		return SheetRef{}, fmt.Errorf("%w: sheet must be a name or index", ErrInvalidOption)
	}
}
