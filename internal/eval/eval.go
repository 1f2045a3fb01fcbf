// Package eval executes read and write plans against concrete format
// libraries: a delimited text parser, excelize for workbooks, and Arrow for
// parquet and feather.
package eval

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/tableio/internal/logging"
	"github.com/JonMunkholm/tableio/internal/plan"
	"github.com/JonMunkholm/tableio/internal/table"
)

// DefaultParallelLoads bounds concurrent loads within one MultiLoad.
const DefaultParallelLoads = 4

// Evaluator runs plans. The zero value is not usable; call New.
type Evaluator struct {
	mem      memory.Allocator
	parallel int
	now      func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithParallelLoads sets how many loads of a MultiLoad run at once.
func WithParallelLoads(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.parallel = n
		}
	}
}

// WithAllocator sets the Arrow allocator used for columnar I/O.
func WithAllocator(mem memory.Allocator) Option {
	return func(e *Evaluator) { e.mem = mem }
}

// WithClock sets the clock used for archive entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// New returns an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		mem:      memory.DefaultAllocator,
		parallel: DefaultParallelLoads,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Read executes a read plan. A MultiLoad's loads run concurrently and their
// tables are combined with the plan's strategy; the returned Combined
// reports whether auto fell back. EmptyPlan yields a nil table.
func (e *Evaluator) Read(ctx context.Context, p plan.ReadPlan) (table.Combined, error) {
	switch rp := p.(type) {
	case nil, plan.EmptyPlan:
		return table.Combined{Outcome: table.OutcomeCombined}, nil
	case plan.SingleLoad:
		tbl, err := e.Load(ctx, rp)
		if err != nil {
			return table.Combined{}, err
		}
		return table.Combined{Table: tbl, Outcome: table.OutcomeCombined}, nil
	case plan.MultiLoad:
		tables, err := e.LoadAll(ctx, rp.Loads)
		if err != nil {
			return table.Combined{}, err
		}
		res, err := table.Combine(tables, rp.Strategy)
		if err != nil {
			return table.Combined{}, err
		}
		if res.Outcome == table.OutcomeFellBack {
			logging.FromContext(ctx).Warn("combine fell back to first source",
				"strategy", rp.Strategy,
				"sources", len(tables),
				"cause", res.Cause,
			)
		}
		return res, nil
	default:
		return table.Combined{}, fmt.Errorf("eval: unsupported read plan %T", p)
	}
}

// LoadAll executes loads concurrently and returns tables in load order.
func (e *Evaluator) LoadAll(ctx context.Context, loads []plan.SingleLoad) ([]*table.Table, error) {
	tables := make([]*table.Table, len(loads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallel)
	for i, l := range loads {
		g.Go(func() error {
			tbl, err := e.Load(gctx, l)
			if err != nil {
				return err
			}
			tables[i] = tbl
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}

// Load executes a single load.
func (e *Evaluator) Load(ctx context.Context, l plan.SingleLoad) (*table.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	var (
		tbl *table.Table
		err error
	)
	switch l.Reader {
	case plan.ReaderCSV, plan.ReaderTSV, plan.ReaderDelim:
		opts := plan.DefaultTextOptions()
		if l.Text != nil {
			opts = *l.Text
		}
		tbl, err = readText(l.Path, opts)
	case plan.ReaderExcel:
		opts := plan.DefaultSpreadsheetOptions()
		if l.Spreadsheet != nil {
			opts = *l.Spreadsheet
		}
		tbl, err = readExcel(l.Path, opts)
	case plan.ReaderParquet:
		tbl, err = readParquet(ctx, e.mem, l.Path)
	case plan.ReaderFeather, plan.ReaderIPC:
		tbl, err = readIPC(e.mem, l.Path)
	case plan.ReaderImport:
		tbl, err = importFile(l.Path)
	default:
		err = fmt.Errorf("unknown reader %q", l.Reader)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", l.Reader, l.Path, err)
	}

	logging.FromContext(ctx).Debug("source loaded",
		"path", l.Path,
		"reader", l.Reader,
		"rows", tbl.NumRows(),
		"cols", tbl.NumCols(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return tbl, nil
}

// WriteResult describes the file a write plan produced.
type WriteResult struct {
	Path  string
	Bytes int64
	// Entries names the sheets or archive members, in order.
	Entries []string
}

// Write executes a write plan. Output lands atomically at the plan's path;
// an unusable location is a *WriteTargetError. EmptyPlan writes nothing.
func (e *Evaluator) Write(ctx context.Context, p plan.WritePlan) (WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return WriteResult{}, err
	}

	var (
		res WriteResult
		fn  func(io.Writer) error
	)
	switch wp := p.(type) {
	case nil, plan.EmptyPlan:
		return WriteResult{}, nil
	case plan.SingleFileWrite:
		res.Path = wp.Path
		res.Entries = []string{wp.Name}
		enc, err := e.encoder(wp.Format, wp.Options)
		if err != nil {
			return WriteResult{}, err
		}
		fn = func(w io.Writer) error { return enc(w, wp.Table) }
	case plan.MultiFileWrite:
		res.Path = wp.Path()
		entries := wp.Entries()
		for _, en := range entries {
			res.Entries = append(res.Entries, en.Name)
		}
		if wp.Workbook() {
			fn = func(w io.Writer) error { return writeWorkbook(w, entries) }
			break
		}
		enc, err := e.encoder(wp.Format, wp.Options)
		if err != nil {
			return WriteResult{}, err
		}
		modified := e.now()
		fn = func(w io.Writer) error { return writeArchive(w, entries, modified, enc) }
	default:
		return WriteResult{}, fmt.Errorf("eval: unsupported write plan %T", p)
	}

	n, err := writeFileAtomic(res.Path, fn)
	if err != nil {
		return WriteResult{}, err
	}
	res.Bytes = n

	logging.FromContext(ctx).Info("plan written",
		"path", res.Path,
		"entries", len(res.Entries),
		"bytes", n,
	)
	return res, nil
}

func (e *Evaluator) encoder(f plan.WriteFormat, opts *plan.WriteOptions) (encodeFunc, error) {
	switch f {
	case plan.FormatCSV:
		o := plan.DefaultWriteOptions()
		if opts != nil {
			o = *opts
		}
		return func(w io.Writer, t *table.Table) error { return writeDelimited(w, t, o) }, nil
	case plan.FormatXLSX:
		return func(w io.Writer, t *table.Table) error {
			return writeWorkbook(w, []plan.Entry{{Name: "Sheet1", Table: t}})
		}, nil
	case plan.FormatParquet:
		return func(w io.Writer, t *table.Table) error { return writeParquet(w, e.mem, t) }, nil
	case plan.FormatFeather:
		return func(w io.Writer, t *table.Table) error { return writeFeather(w, e.mem, t) }, nil
	}
	return nil, fmt.Errorf("eval: unsupported write format %q", f)
}
