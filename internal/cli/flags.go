package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tableio/internal/core"
	"github.com/JonMunkholm/tableio/internal/format"
	"github.com/JonMunkholm/tableio/internal/plan"
	"github.com/JonMunkholm/tableio/internal/table"
)

// Output modes accepted by --output.
const (
	outputText = "text"
	outputJSON = "json"
)

// readFlags holds the read node flags shared by plan read and convert.
type readFlags struct {
	delim     string
	quote     string
	encoding  string
	skip      int
	maxRows   int
	noHeader  bool
	sheet     string
	sheetIdx  int
	cellRange string
	combine   string
}

func (f *readFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.delim, "delim", string(format.DefaultDelimiter), `field delimiter for text sources ("tab" or \t for tabs)`)
	fl.StringVar(&f.quote, "quote", string(format.DefaultQuoteChar), "quote character for text sources")
	fl.StringVar(&f.encoding, "encoding", format.DefaultEncoding, "text encoding of text sources")
	fl.IntVar(&f.skip, "skip", format.DefaultSkipRows, "rows to skip before the header")
	fl.IntVar(&f.maxRows, "max-rows", format.Unbounded, "maximum data rows to read (0 reads all)")
	fl.BoolVar(&f.noHeader, "no-header", false, "treat the first row as data")
	fl.StringVar(&f.sheet, "sheet", "", "worksheet name for Excel sources")
	fl.IntVar(&f.sheetIdx, "sheet-index", 0, "1-based worksheet index for Excel sources")
	fl.StringVar(&f.cellRange, "range", "", `cell range for Excel sources, such as "B2:D20"`)
	fl.StringVar(&f.combine, "combine", string(table.StrategyAuto), "combine strategy: auto, rbind, cbind or first")
}

// state builds a read node configuration for the given locations.
func (f *readFlags) state(locations []string) (core.ReadState, error) {
	opts := plan.DefaultReadOptions()

	delim, err := plan.ParseRune(f.delim)
	if err != nil {
		return core.ReadState{}, fmt.Errorf("--delim: %w", err)
	}
	quote, err := plan.ParseRune(f.quote)
	if err != nil {
		return core.ReadState{}, fmt.Errorf("--quote: %w", err)
	}
	opts.Text.Delimiter = delim
	opts.Text.QuoteChar = quote
	opts.Text.Encoding = f.encoding
	opts.Text.SkipRows = f.skip
	opts.Text.MaxRows = f.maxRows
	opts.Text.NoHeader = f.noHeader

	opts.Spreadsheet.Sheet = plan.SheetRef{Name: f.sheet, Index: f.sheetIdx}
	opts.Spreadsheet.Range = f.cellRange
	opts.Spreadsheet.SkipRows = f.skip
	opts.Spreadsheet.MaxRows = f.maxRows
	opts.Spreadsheet.NoHeader = f.noHeader

	if err := opts.Validate(); err != nil {
		return core.ReadState{}, err
	}

	strategy, err := table.ParseStrategy(f.combine)
	if err != nil {
		return core.ReadState{}, fmt.Errorf("--combine: %w", err)
	}

	sources := make([]plan.Source, len(locations))
	for i, loc := range locations {
		sources[i] = plan.SourceFor(loc)
	}
	return core.ReadState{Sources: sources, Options: opts, Strategy: strategy}, nil
}

// writeFlags holds the write node flags shared by plan write and convert.
type writeFlags struct {
	to    string
	out   string
	name  string
	delim string
	quote string
	na    string
}

func (f *writeFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.to, "to", string(plan.FormatCSV), "output format: csv, xlsx, parquet or feather")
	fl.StringVar(&f.out, "out", ".", "output directory")
	fl.StringVar(&f.name, "name", "", "base filename (default: data plus a timestamp)")
	fl.StringVar(&f.delim, "write-delim", string(format.DefaultDelimiter), "field delimiter for csv output")
	fl.StringVar(&f.quote, "write-quote", "needed", "quoting for csv output: needed, all or none")
	fl.StringVar(&f.na, "na", "", "text written for missing values in csv output")
}

// target builds a write node configuration.
func (f *writeFlags) target() (plan.Target, error) {
	wf, err := plan.ParseWriteFormat(f.to)
	if err != nil {
		return plan.Target{}, fmt.Errorf("--to: %w", err)
	}
	t := plan.Target{
		Directory:    f.out,
		BaseFilename: f.name,
		Format:       wf,
		Options:      plan.DefaultWriteOptions(),
	}
	if wf != plan.FormatCSV {
		return t, nil
	}

	delim, err := plan.ParseRune(f.delim)
	if err != nil {
		return plan.Target{}, fmt.Errorf("--write-delim: %w", err)
	}
	quote, err := plan.ParseQuoteMode(f.quote)
	if err != nil {
		return plan.Target{}, fmt.Errorf("--write-quote: %w", err)
	}
	t.Options = plan.WriteOptions{Delimiter: delim, Quote: quote, NA: f.na}
	if err := t.Options.Validate(); err != nil {
		return plan.Target{}, err
	}
	return t, nil
}

func checkOutput(mode string) error {
	switch mode {
	case outputText, outputJSON:
		return nil
	}
	return fmt.Errorf("--output: want %q or %q, got %q", outputText, outputJSON, mode)
}
