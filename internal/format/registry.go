// Package format maps file extensions to format categories and detects the
// category of a local path or remote URL.
//
// Everything in this package is a pure function of its input string: nothing
// touches the filesystem or the network.
package format

import (
	"sort"
	"strings"
)

// Category is a coarse format grouping that decides which reader or writer
// variant applies to a file.
type Category int

const (
	// CategoryOther is delegated to the generic importer. It is the zero
	// value so that an unknown extension never needs special handling.
	CategoryOther Category = iota
	CategoryTabularText
	CategorySpreadsheet
	CategoryColumnar
	CategoryStatistical
)

var categoryNames = []string{"other", "tabular_text", "spreadsheet", "columnar", "statistical"}

// String returns the snake_case name used in persisted state and the HTTP API.
func (c Category) String() string {
	if int(c) >= 0 && int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "other"
}

// ParseCategory is the inverse of String. Unknown names resolve to
// CategoryOther and ok=false.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range categoryNames {
		if name == s {
			return Category(i), true
		}
	}
	return CategoryOther, false
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UsesGenericImporter reports whether sources of this category are read by
// the generic importer with no per-category options.
func (c Category) UsesGenericImporter() bool {
	return c == CategoryOther || c == CategoryStatistical
}

// extensions is the static registry. Keys are lowercase and carry no dot.
var extensions = map[string]Category{
	"csv": CategoryTabularText,
	"tsv": CategoryTabularText,
	"tab": CategoryTabularText,
	"txt": CategoryTabularText,

	"xlsx": CategorySpreadsheet,
	"xlsm": CategorySpreadsheet,
	"xls":  CategorySpreadsheet,

	"parquet": CategoryColumnar,
	"pq":      CategoryColumnar,
	"feather": CategoryColumnar,
	"arrow":   CategoryColumnar,
	"ipc":     CategoryColumnar,
	"arrows":  CategoryColumnar,

	"sav":      CategoryStatistical,
	"zsav":     CategoryStatistical,
	"por":      CategoryStatistical,
	"dta":      CategoryStatistical,
	"sas7bdat": CategoryStatistical,
	"xpt":      CategoryStatistical,
}

// CategoryForExtension resolves an extension to its category. The lookup is
// case-insensitive and tolerates a leading dot. Unmapped extensions resolve
// to CategoryOther rather than failing.
func CategoryForExtension(ext string) Category {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if c, ok := extensions[ext]; ok {
		return c
	}
	return CategoryOther
}

// Extensions returns the registered extensions for a category, sorted.
// CategoryOther has no registered extensions.
func Extensions(c Category) []string {
	var out []string
	for ext, cat := range extensions {
		if cat == c {
			out = append(out, ext)
		}
	}
	sort.Strings(out)
	return out
}

// ColumnarVariant names the concrete columnar reader chosen by file extension.
type ColumnarVariant string

const (
	VariantParquet ColumnarVariant = "parquet"
	VariantFeather ColumnarVariant = "feather"
	VariantIPC     ColumnarVariant = "ipc"
)

// ColumnarVariantFor picks the columnar reader for an extension. Extensions
// that are not recognised fall back to parquet.
func ColumnarVariantFor(ext string) ColumnarVariant {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "feather":
		return VariantFeather
	case "arrow", "ipc", "arrows":
		return VariantIPC
	default:
		return VariantParquet
	}
}
