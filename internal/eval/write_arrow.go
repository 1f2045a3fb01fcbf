package eval

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/JonMunkholm/tableio/internal/table"
)

// writeParquet writes tbl as snappy-compressed parquet with the Arrow schema
// stored in the file metadata.
func writeParquet(w io.Writer, mem memory.Allocator, tbl *table.Table) error {
	rec, err := toRecord(mem, tbl)
	if err != nil {
		return err
	}
	defer rec.Release()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Snappy),
		parquet.WithAllocator(mem),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	pw, err := pqarrow.NewFileWriter(rec.Schema(), w, props, arrowProps)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	if err := pw.Write(rec); err != nil {
		pw.Close()
		return fmt.Errorf("write parquet: %w", err)
	}
	return pw.Close()
}

// writeFeather writes tbl as a feather v2 (Arrow IPC file) with LZ4 buffers.
func writeFeather(w io.Writer, mem memory.Allocator, tbl *table.Table) error {
	rec, err := toRecord(mem, tbl)
	if err != nil {
		return err
	}
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem), ipc.WithLZ4())
	if err != nil {
		return fmt.Errorf("create feather writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("write feather: %w", err)
	}
	return fw.Close()
}
