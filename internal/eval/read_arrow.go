package eval

import (
	"context"
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/JonMunkholm/tableio/internal/table"
)

// readParquet loads a parquet file through the Arrow adapter.
func readParquet(ctx context.Context, mem memory.Allocator, path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f, file.WithReadProps(parquet.NewReaderProperties(mem)))
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer pf.Close()

	ar, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("arrow reader: %w", err)
	}
	tbl, err := ar.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	defer tbl.Release()

	tr := array.NewTableReader(tbl, tbl.NumRows())
	defer tr.Release()

	var recs []arrow.Record
	for tr.Next() {
		rec := tr.Record()
		rec.Retain()
		recs = append(recs, rec)
	}
	defer releaseAll(recs)
	if err := tr.Err(); err != nil {
		return nil, err
	}
	return fromRecords(tbl.Schema(), recs)
}

// readIPC loads an Arrow IPC file (feather v2). Files written in the
// streaming format are read with the stream reader instead.
func readIPC(mem memory.Allocator, path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fr, err := ipc.NewFileReader(f, ipc.WithAllocator(mem))
	if err != nil {
		if _, serr := f.Seek(0, 0); serr != nil {
			return nil, serr
		}
		return readIPCStream(mem, f)
	}
	defer fr.Close()

	recs := make([]arrow.Record, 0, fr.NumRecords())
	defer func() { releaseAll(recs) }()
	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.Record(i)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		rec.Retain()
		recs = append(recs, rec)
	}
	return fromRecords(fr.Schema(), recs)
}

func readIPCStream(mem memory.Allocator, f *os.File) (*table.Table, error) {
	r, err := ipc.NewReader(f, ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("open arrow ipc: %w", err)
	}
	defer r.Release()

	var recs []arrow.Record
	defer func() { releaseAll(recs) }()
	for r.Next() {
		rec := r.Record()
		rec.Retain()
		recs = append(recs, rec)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return fromRecords(r.Schema(), recs)
}

func releaseAll(recs []arrow.Record) {
	for _, r := range recs {
		r.Release()
	}
}
