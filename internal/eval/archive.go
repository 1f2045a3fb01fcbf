package eval

import (
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/JonMunkholm/tableio/internal/plan"
	"github.com/JonMunkholm/tableio/internal/table"
)

type encodeFunc func(io.Writer, *table.Table) error

// writeArchive writes a zip holding one encoded file per entry.
func writeArchive(w io.Writer, entries []plan.Entry, modified time.Time, encode encodeFunc) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.Name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			zw.Close()
			return fmt.Errorf("archive entry %q: %w", e.Name, err)
		}
		if err := encode(fw, e.Table); err != nil {
			zw.Close()
			return fmt.Errorf("archive entry %q: %w", e.Name, err)
		}
	}
	return zw.Close()
}
