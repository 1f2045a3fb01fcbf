package format

import (
	"path"
	"strings"
)

// Documented defaults for tabular text sources. Spreadsheet and columnar
// sources share the row defaults.
const (
	DefaultDelimiter = ','
	DefaultQuoteChar = '"'
	DefaultEncoding  = "UTF-8"
	DefaultSkipRows  = 0
	// Unbounded is the MaxRows value meaning "read every row".
	Unbounded = 0
)

// Extension extracts the lowercase extension (without dot) from a local path
// or URL. For URLs everything from the first '?' or '#' is discarded first,
// so "http://x/f.CSV?dl=1" yields "csv". Returns "" when there is none.
func Extension(pathOrURL string) string {
	s := strings.TrimSpace(pathOrURL)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, "\\", "/")
	base := path.Base(s)
	if base == "." || base == "/" {
		return ""
	}
	dot := strings.LastIndexByte(base, '.')
	if dot <= 0 || dot == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[dot+1:])
}

// Detect resolves a path or URL to its format category. It fails only for
// empty input; unknown extensions resolve to CategoryOther.
func Detect(pathOrURL string) (Category, error) {
	if strings.TrimSpace(pathOrURL) == "" {
		return CategoryOther, &InvalidSourceError{Reason: "empty source"}
	}
	return CategoryForExtension(Extension(pathOrURL)), nil
}

// IsRemote reports whether s looks like a URL rather than a local path.
func IsRemote(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, scheme := range []string{"http://", "https://", "s3://", "ftp://"} {
		if strings.HasPrefix(s, scheme) {
			return true
		}
	}
	return false
}
