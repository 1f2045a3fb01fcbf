package eval

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteTargetError reports an output location that cannot be written.
type WriteTargetError struct {
	Path string
	Err  error
}

func (e *WriteTargetError) Error() string {
	return fmt.Sprintf("cannot write %s: %v", e.Path, e.Err)
}

func (e *WriteTargetError) Unwrap() error { return e.Err }

// writeFileAtomic creates path's directory if needed, streams fn's output to
// a temporary file beside path and renames it into place. Readers of path
// never see a partial file. Returns the number of bytes written.
func writeFileAtomic(path string, fn func(io.Writer) error) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, &WriteTargetError{Path: path, Err: err}
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return 0, &WriteTargetError{Path: path, Err: fmt.Errorf("is a directory")}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return 0, &WriteTargetError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	cw := &countingWriter{w: tmp}
	bw := bufio.NewWriterSize(cw, 64*1024)
	if err := fn(bw); err != nil {
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		return 0, &WriteTargetError{Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return 0, &WriteTargetError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return 0, &WriteTargetError{Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return 0, &WriteTargetError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return 0, &WriteTargetError{Path: path, Err: err}
	}
	committed = true
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
