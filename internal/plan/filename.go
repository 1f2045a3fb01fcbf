package plan

import (
	"path/filepath"
	"strings"
	"time"
)

// TimestampLayout formats generated base filenames to the second.
const TimestampLayout = "20060102_150405"

// BaseFilename derives the output base name. A non-blank user name is
// returned with any directory part and extension removed; a blank one yields
// "data_YYYYMMDD_HHMMSS" from ts. Two builds in the same second collide.
func BaseFilename(userFilename string, ts time.Time) string {
	name := strings.TrimSpace(userFilename)
	if name != "" {
		name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
		name = strings.TrimSpace(strings.TrimSuffix(name, filepath.Ext(name)))
		switch name {
		case "", ".", "..", "/":
		default:
			return name
		}
	}
	return "data_" + ts.Format(TimestampLayout)
}
