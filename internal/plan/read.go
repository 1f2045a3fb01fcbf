package plan

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/JonMunkholm/tableio/internal/format"
	"github.com/JonMunkholm/tableio/internal/table"
)

// Reader names the reader variant a SingleLoad dispatches to.
type Reader string

const (
	ReaderCSV     Reader = "csv"
	ReaderTSV     Reader = "tsv"
	ReaderDelim   Reader = "delim"
	ReaderExcel   Reader = "excel"
	ReaderParquet Reader = "parquet"
	ReaderFeather Reader = "feather"
	ReaderIPC     Reader = "ipc"
	ReaderImport  Reader = "import"
)

// ReadPlan is EmptyPlan, SingleLoad or MultiLoad.
type ReadPlan interface {
	fmt.Stringer
	readPlan()
}

// EmptyPlan is returned for empty inputs. It is both a ReadPlan and a WritePlan.
type EmptyPlan struct{}

func (EmptyPlan) readPlan()  {}
func (EmptyPlan) writePlan() {}

func (EmptyPlan) String() string { return "NULL" }

// MarshalJSON implements json.Marshaler.
func (EmptyPlan) MarshalJSON() ([]byte, error) {
	return []byte(`{"kind":"empty"}`), nil
}

// IsEmpty reports whether p is nil or an EmptyPlan.
func IsEmpty(p any) bool {
	switch p.(type) {
	case nil, EmptyPlan, *EmptyPlan:
		return true
	}
	return false
}

// SingleLoad reads one local file. Text is set only for tabular text loads
// and Spreadsheet only for spreadsheet loads.
type SingleLoad struct {
	Path        string
	Category    format.Category
	Reader      Reader
	Text        *TextOptions
	Spreadsheet *SpreadsheetOptions
}

func (SingleLoad) readPlan() {}

// MultiLoad reads several files and combines the results.
type MultiLoad struct {
	Loads    []SingleLoad
	Strategy table.Strategy
}

func (MultiLoad) readPlan() {}

// Paths returns the path of every load in order.
func (m MultiLoad) Paths() []string {
	out := make([]string, len(m.Loads))
	for i, l := range m.Loads {
		out[i] = l.Path
	}
	return out
}

// BuildReadPlan translates resolved sources, options and a combine strategy
// into a plan. It performs no I/O; categories come from extensions only.
//
// Sources must already be local paths. An empty or remote source is an
// *format.InvalidSourceError. Each source is dispatched by its own category,
// so mixed batches are representable.
func BuildReadPlan(sources []Source, opts ReadOptions, strategy table.Strategy) (ReadPlan, error) {
	if len(sources) == 0 {
		return EmptyPlan{}, nil
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	strategy, err := table.ParseStrategy(string(strategy))
	if err != nil {
		return nil, err
	}

	loads := make([]SingleLoad, 0, len(sources))
	for _, src := range sources {
		load, err := buildLoad(src, opts)
		if err != nil {
			return nil, err
		}
		loads = append(loads, load)
	}

	if len(loads) == 1 {
		return loads[0], nil
	}
	return MultiLoad{Loads: loads, Strategy: strategy}, nil
}

func buildLoad(src Source, opts ReadOptions) (SingleLoad, error) {
	if err := src.Validate(); err != nil {
		return SingleLoad{}, err
	}
	if src.IsRemote() {
		return SingleLoad{}, &format.InvalidSourceError{Source: src.URL, Reason: "remote source must be resolved to a local path first"}
	}

	cat, err := format.Detect(src.Path)
	if err != nil {
		return SingleLoad{}, err
	}

	load := SingleLoad{Path: src.Path, Category: cat}
	switch cat {
	case format.CategoryTabularText:
		text := opts.Text.withDefaults()
		load.Text = &text
		load.Reader = textReader(text.Delimiter)
	case format.CategorySpreadsheet:
		sheet := opts.Spreadsheet
		load.Spreadsheet = &sheet
		load.Reader = ReaderExcel
	case format.CategoryColumnar:
		load.Reader = columnarReader(format.ColumnarVariantFor(format.Extension(src.Path)))
	default:
		load.Reader = ReaderImport
	}
	return load, nil
}

func textReader(delim rune) Reader {
	switch delim {
	case ',':
		return ReaderCSV
	case '\t':
		return ReaderTSV
	default:
		return ReaderDelim
	}
}

func columnarReader(v format.ColumnarVariant) Reader {
	switch v {
	case format.VariantFeather:
		return ReaderFeather
	case format.VariantIPC:
		return ReaderIPC
	default:
		return ReaderParquet
	}
}

// String renders the load as a reader call.
func (l SingleLoad) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "read_%s(%s", l.Reader, rString(l.Path))
	switch {
	case l.Text != nil:
		o := l.Text
		if l.Reader == ReaderDelim {
			fmt.Fprintf(&b, ", delim = %s", rString(string(o.Delimiter)))
		}
		fmt.Fprintf(&b, ", quote = %s, skip = %d, n_max = %s, col_names = %s, locale = locale(encoding = %s)",
			rString(string(o.QuoteChar)), o.SkipRows, rRows(o.MaxRows), rBool(!o.NoHeader), rString(o.Encoding))
	case l.Spreadsheet != nil:
		o := l.Spreadsheet
		if o.Sheet.Name != "" {
			fmt.Fprintf(&b, ", sheet = %s", rString(o.Sheet.Name))
		} else {
			fmt.Fprintf(&b, ", sheet = %s", o.Sheet)
		}
		if o.Range != "" {
			fmt.Fprintf(&b, ", range = %s", rString(o.Range))
		}
		fmt.Fprintf(&b, ", skip = %d, n_max = %s, col_names = %s", o.SkipRows, rRows(o.MaxRows), rBool(!o.NoHeader))
	}
	b.WriteString(")")
	return b.String()
}

// String renders the loads wrapped in a combine call.
func (m MultiLoad) String() string {
	parts := make([]string, len(m.Loads))
	for i, l := range m.Loads {
		parts[i] = l.String()
	}
	return fmt.Sprintf("combine(%s, list(%s))", m.Strategy, strings.Join(parts, ", "))
}

type singleLoadJSON struct {
	Kind        string              `json:"kind"`
	Path        string              `json:"path"`
	Category    format.Category     `json:"category"`
	Reader      Reader              `json:"reader"`
	Text        *TextOptions        `json:"text,omitempty"`
	Spreadsheet *SpreadsheetOptions `json:"spreadsheet,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (l SingleLoad) MarshalJSON() ([]byte, error) {
	return json.Marshal(singleLoadJSON{
		Kind:        "single_load",
		Path:        l.Path,
		Category:    l.Category,
		Reader:      l.Reader,
		Text:        l.Text,
		Spreadsheet: l.Spreadsheet,
	})
}

// MarshalJSON implements json.Marshaler.
func (m MultiLoad) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind     string         `json:"kind"`
		Strategy table.Strategy `json:"strategy"`
		Loads    []SingleLoad   `json:"loads"`
	}{"multi_load", m.Strategy, m.Loads})
}

func rString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\t", `\t`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

func rBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func rRows(n int) string {
	if n == format.Unbounded {
		return "Inf"
	}
	return fmt.Sprint(n)
}
