package plan

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/JonMunkholm/tableio/internal/format"
	"github.com/JonMunkholm/tableio/internal/table"
)

// ErrInvalidTableSet is wrapped when a table set has blank, duplicate or nil entries.
var ErrInvalidTableSet = errors.New("invalid table set")

// WriteFormat is the output format of a write node.
type WriteFormat string

const (
	FormatCSV     WriteFormat = "csv"
	FormatXLSX    WriteFormat = "xlsx"
	FormatParquet WriteFormat = "parquet"
	FormatFeather WriteFormat = "feather"
)

// ParseWriteFormat accepts format names and their category aliases.
func ParseWriteFormat(s string) (WriteFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv", "tsv", "text", "tabular_text":
		return FormatCSV, nil
	case "xlsx", "excel", "spreadsheet":
		return FormatXLSX, nil
	case "parquet", "columnar_parquet":
		return FormatParquet, nil
	case "feather", "arrow", "columnar_feather":
		return FormatFeather, nil
	}
	return "", fmt.Errorf("unknown write format %q", s)
}

// Category returns the registry category the format belongs to.
func (f WriteFormat) Category() format.Category {
	switch f {
	case FormatCSV:
		return format.CategoryTabularText
	case FormatXLSX:
		return format.CategorySpreadsheet
	case FormatParquet, FormatFeather:
		return format.CategoryColumnar
	}
	return format.CategoryOther
}

// QuoteMode is the tri-state quoting option of the text writer.
type QuoteMode int

const (
	// QuoteAsNeeded quotes fields containing the delimiter, a quote or a newline.
	QuoteAsNeeded QuoteMode = iota
	QuoteAll
	QuoteNone
)

func (q QuoteMode) String() string {
	switch q {
	case QuoteAll:
		return "all"
	case QuoteNone:
		return "none"
	default:
		return "needed"
	}
}

// ParseQuoteMode maps true/false/unset spellings to a QuoteMode.
func ParseQuoteMode(s string) (QuoteMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unset", "needed", "as-needed", "as_needed", "auto":
		return QuoteAsNeeded, nil
	case "true", "all", "yes":
		return QuoteAll, nil
	case "false", "none", "no":
		return QuoteNone, nil
	}
	return QuoteAsNeeded, fmt.Errorf("%w: quote %q", ErrInvalidOption, s)
}

// MarshalJSON encodes the tri-state as true, false or null.
func (q QuoteMode) MarshalJSON() ([]byte, error) {
	switch q {
	case QuoteAll:
		return []byte("true"), nil
	case QuoteNone:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts true, false, null or a ParseQuoteMode spelling.
func (q *QuoteMode) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*q = QuoteAsNeeded
	case bool:
		*q = QuoteNone
		if x {
			*q = QuoteAll
		}
	case string:
		m, err := ParseQuoteMode(x)
		if err != nil {
			return err
		}
		*q = m
	default:
		return fmt.Errorf("%w: quote must be true, false or null", ErrInvalidOption)
	}
	return nil
}

// WriteOptions configure the text writer. Other formats take no options.
type WriteOptions struct {
	Delimiter rune
	Quote     QuoteMode
	NA        string
}

// DefaultWriteOptions returns delimiter ",", quote as needed, NA "".
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{Delimiter: format.DefaultDelimiter, Quote: QuoteAsNeeded}
}

// Validate checks the delimiter.
func (o WriteOptions) Validate() error {
	switch o.Delimiter {
	case 0:
		return nil
	case '\n', '\r', '"':
		return fmt.Errorf("%w: delimiter %q", ErrInvalidOption, o.Delimiter)
	}
	return nil
}

func (o WriteOptions) withDefaults() WriteOptions {
	if o.Delimiter == 0 {
		o.Delimiter = format.DefaultDelimiter
	}
	return o
}

var writeOptionKeys = []string{"delimiter", "quote", "na"}

type writeOptionsJSON struct {
	Delimiter string    `json:"delimiter"`
	Quote     QuoteMode `json:"quote"`
	NA        string    `json:"na"`
}

// MarshalJSON implements json.Marshaler.
func (o WriteOptions) MarshalJSON() ([]byte, error) {
	o = o.withDefaults()
	return json.Marshal(writeOptionsJSON{Delimiter: string(o.Delimiter), Quote: o.Quote, NA: o.NA})
}

// UnmarshalJSON decodes on top of the defaults; unknown keys are rejected.
func (o *WriteOptions) UnmarshalJSON(data []byte) error {
	fields, err := decodeOptionMap(data, writeOptionKeys)
	if err != nil {
		return err
	}
	out := DefaultWriteOptions()
	for key, raw := range fields {
		switch key {
		case "delimiter":
			out.Delimiter, err = decodeRune(key, raw)
		case "quote":
			err = json.Unmarshal(raw, &out.Quote)
		case "na":
			err = json.Unmarshal(raw, &out.NA)
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

// Target describes where and how a write node writes.
type Target struct {
	Directory    string       `json:"directory"`
	BaseFilename string       `json:"base_filename"`
	Format       WriteFormat  `json:"format"`
	Options      WriteOptions `json:"options"`
}

// NamedTable is one entry of a TableSet.
type NamedTable struct {
	Name  string
	Table *table.Table
}

// TableSet is an ordered set of uniquely named tables.
type TableSet []NamedTable

// Unnamed names tables by their 1-based position.
func Unnamed(tables ...*table.Table) TableSet {
	out := make(TableSet, len(tables))
	for i, t := range tables {
		out[i] = NamedTable{Name: strconv.Itoa(i + 1), Table: t}
	}
	return out
}

// Names returns the table names in order.
func (s TableSet) Names() []string {
	out := make([]string, len(s))
	for i, nt := range s {
		out[i] = nt.Name
	}
	return out
}

// Validate checks that names are non-blank and unique and tables are set.
func (s TableSet) Validate() error {
	seen := make(map[string]bool, len(s))
	for i, nt := range s {
		name := strings.TrimSpace(nt.Name)
		if name == "" {
			return fmt.Errorf("%w: entry %d has no name", ErrInvalidTableSet, i+1)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidTableSet, name)
		}
		seen[name] = true
		if nt.Table == nil {
			return fmt.Errorf("%w: table %q is nil", ErrInvalidTableSet, name)
		}
	}
	return nil
}

// WritePlan is EmptyPlan, SingleFileWrite or MultiFileWrite.
type WritePlan interface {
	fmt.Stringer
	writePlan()
}

// SingleFileWrite writes one table to Path. Options is set for text only.
type SingleFileWrite struct {
	Name    string
	Table   *table.Table
	Path    string
	Format  WriteFormat
	Options *WriteOptions
}

func (SingleFileWrite) writePlan() {}

// MultiFileWrite writes several tables to one workbook (xlsx) or one zip
// archive holding a file per table (every other format).
type MultiFileWrite struct {
	Tables       TableSet
	Directory    string
	BaseFilename string
	Format       WriteFormat
	Options      *WriteOptions
}

func (MultiFileWrite) writePlan() {}

// Workbook reports whether the plan expands to one workbook with sheets.
func (m MultiFileWrite) Workbook() bool { return m.Format == FormatXLSX }

// Path returns the single output file: {dir}/{base}.xlsx or {dir}/{base}.zip.
func (m MultiFileWrite) Path() string {
	ext := "zip"
	if m.Workbook() {
		ext = "xlsx"
	}
	return filepath.Join(m.Directory, m.BaseFilename+"."+ext)
}

// Entry is one sheet of a workbook or one file of an archive.
type Entry struct {
	// Name is the sheet name or the file name inside the archive.
	Name  string
	Table *table.Table
}

// Entries names each member of the output. Sheet names are the table names
// made valid for a workbook; archive members are "{name}.{ext}".
func (m MultiFileWrite) Entries() []Entry {
	out := make([]Entry, len(m.Tables))
	used := make(map[string]bool, len(m.Tables))
	ext := Extension(m.Format, m.Options)
	for i, nt := range m.Tables {
		var name string
		if m.Workbook() {
			name = uniqueSheetName(SheetName(nt.Name), used)
		} else {
			base := safeFileName(nt.Name)
			name = base + "." + ext
			for n := 2; used[name]; n++ {
				name = fmt.Sprintf("%s_%d.%s", base, n, ext)
			}
			used[name] = true
		}
		out[i] = Entry{Name: name, Table: nt.Table}
	}
	return out
}

// Extension returns the file extension for a format. Text output written
// with a tab delimiter uses "tsv".
func Extension(f WriteFormat, opts *WriteOptions) string {
	if f == FormatCSV && opts != nil && opts.Delimiter == '\t' {
		return "tsv"
	}
	return string(f)
}

// BuildWritePlan translates tables and a target into a plan. The base
// filename is computed once from target.BaseFilename and now, so every file
// or sheet in the plan shares it. Zero tables yield EmptyPlan.
func BuildWritePlan(tables TableSet, target Target, now time.Time) (WritePlan, error) {
	if len(tables) == 0 {
		return EmptyPlan{}, nil
	}
	if err := tables.Validate(); err != nil {
		return nil, err
	}
	f, err := ParseWriteFormat(string(target.Format))
	if err != nil {
		return nil, err
	}

	var opts *WriteOptions
	if f == FormatCSV {
		if err := target.Options.Validate(); err != nil {
			return nil, err
		}
		o := target.Options.withDefaults()
		opts = &o
	}

	base := BaseFilename(target.BaseFilename, now)
	if len(tables) == 1 {
		return SingleFileWrite{
			Name:    tables[0].Name,
			Table:   tables[0].Table,
			Path:    filepath.Join(target.Directory, base+"."+Extension(f, opts)),
			Format:  f,
			Options: opts,
		}, nil
	}
	return MultiFileWrite{
		Tables:       tables,
		Directory:    target.Directory,
		BaseFilename: base,
		Format:       f,
		Options:      opts,
	}, nil
}

const maxSheetName = 31

// SheetName makes name valid as a worksheet name: no []:*?/\ characters,
// at most 31 characters, not blank.
func SheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', ':', '*', '?', '/', '\\':
			return '_'
		}
		return r
	}, strings.Trim(strings.TrimSpace(name), "'"))
	if name == "" {
		name = "Sheet"
	}
	if r := []rune(name); len(r) > maxSheetName {
		name = string(r[:maxSheetName])
	}
	return name
}

func uniqueSheetName(name string, used map[string]bool) string {
	candidate := name
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := fmt.Sprintf("_%d", n)
		r := []rune(name)
		if len(r)+len(suffix) > maxSheetName {
			r = r[:maxSheetName-len(suffix)]
		}
		candidate = string(r) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func safeFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." {
		return "table"
	}
	return name
}

var writerFuncs = map[WriteFormat]string{
	FormatCSV:     "write_delim",
	FormatXLSX:    "write_xlsx",
	FormatParquet: "write_parquet",
	FormatFeather: "write_feather",
}

func textArgs(o *WriteOptions) string {
	if o == nil {
		return ""
	}
	return fmt.Sprintf(", delim = %s, quote = %s, na = %s", rString(string(o.Delimiter)), rString(o.Quote.String()), rString(o.NA))
}

// String renders the write as a writer call.
func (w SingleFileWrite) String() string {
	return fmt.Sprintf("%s(`%s`, %s%s)", writerFuncs[w.Format], w.Name, rString(w.Path), textArgs(w.Options))
}

// String renders a workbook write or a zip of per-table writes.
func (m MultiFileWrite) String() string {
	entries := m.Entries()
	parts := make([]string, len(entries))
	if m.Workbook() {
		for i, e := range entries {
			parts[i] = fmt.Sprintf("%s = `%s`", rString(e.Name), m.Tables[i].Name)
		}
		return fmt.Sprintf("write_xlsx(list(%s), %s)", strings.Join(parts, ", "), rString(m.Path()))
	}
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%s(`%s`, %s%s)", writerFuncs[m.Format], m.Tables[i].Name, rString(e.Name), textArgs(m.Options))
	}
	return fmt.Sprintf("zip(%s, list(%s))", rString(m.Path()), strings.Join(parts, ", "))
}

// MarshalJSON describes the write without the table data.
func (w SingleFileWrite) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind    string        `json:"kind"`
		Name    string        `json:"name"`
		Path    string        `json:"path"`
		Format  WriteFormat   `json:"format"`
		Rows    int           `json:"rows"`
		Options *WriteOptions `json:"options,omitempty"`
	}{"single_file_write", w.Name, w.Path, w.Format, w.Table.NumRows(), w.Options})
}

// MarshalJSON describes the write without the table data.
func (m MultiFileWrite) MarshalJSON() ([]byte, error) {
	type entryJSON struct {
		Table string `json:"table"`
		Name  string `json:"name"`
		Rows  int    `json:"rows"`
	}
	entries := m.Entries()
	out := make([]entryJSON, len(entries))
	for i, e := range entries {
		out[i] = entryJSON{Table: m.Tables[i].Name, Name: e.Name, Rows: e.Table.NumRows()}
	}
	container := "archive"
	if m.Workbook() {
		container = "workbook"
	}
	return json.Marshal(struct {
		Kind      string        `json:"kind"`
		Container string        `json:"container"`
		Path      string        `json:"path"`
		Format    WriteFormat   `json:"format"`
		Entries   []entryJSON   `json:"entries"`
		Options   *WriteOptions `json:"options,omitempty"`
	}{"multi_file_write", container, m.Path(), m.Format, out, m.Options})
}
