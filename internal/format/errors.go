package format

import "fmt"

// InvalidSourceError is returned for an empty or malformed source descriptor.
type InvalidSourceError struct {
	Source string
	Reason string
}

func (e *InvalidSourceError) Error() string {
	if e.Source == "" {
		return "invalid source: " + e.Reason
	}
	return fmt.Sprintf("invalid source %q: %s", e.Source, e.Reason)
}

// UnsupportedFormatError is never raised by plan building: unknown extensions
// fall through to the generic importer. Evaluators raise it when the generic
// importer cannot handle a file.
type UnsupportedFormatError struct {
	Path      string
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	ext := e.Extension
	if ext == "" {
		ext = "(none)"
	}
	return fmt.Sprintf("unsupported format %s for %s", ext, e.Path)
}
