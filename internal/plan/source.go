// Package plan builds executable read and write plans.
//
// A plan is a data value describing an I/O operation without performing it.
// Building one is pure: the only inputs are the sources or tables, the
// per-format options and, for write plans, an injected timestamp. Evaluating
// a plan is the host's job (see package eval).
package plan

import (
	"strings"

	"github.com/JonMunkholm/tableio/internal/format"
)

// Source is a source descriptor: exactly one of a local path or a remote URL.
type Source struct {
	Path string `json:"path,omitempty"`
	URL  string `json:"url,omitempty"`
}

// LocalPath returns a descriptor for a file on the local filesystem.
func LocalPath(p string) Source { return Source{Path: p} }

// RemoteURL returns a descriptor for a file that must be fetched first.
func RemoteURL(u string) Source { return Source{URL: u} }

// SourceFor classifies s as a URL or a local path.
func SourceFor(s string) Source {
	if format.IsRemote(s) {
		return RemoteURL(s)
	}
	return LocalPath(s)
}

// LocalPaths wraps each path as a local source.
func LocalPaths(paths ...string) []Source {
	out := make([]Source, len(paths))
	for i, p := range paths {
		out[i] = LocalPath(p)
	}
	return out
}

// IsRemote reports whether the descriptor still needs acquisition.
func (s Source) IsRemote() bool { return strings.TrimSpace(s.URL) != "" }

// Location returns whichever representation is active.
func (s Source) Location() string {
	if s.IsRemote() {
		return s.URL
	}
	return s.Path
}

// Validate checks that exactly one representation is set.
func (s Source) Validate() error {
	hasPath := strings.TrimSpace(s.Path) != ""
	hasURL := strings.TrimSpace(s.URL) != ""
	switch {
	case hasPath && hasURL:
		return &format.InvalidSourceError{Source: s.Path, Reason: "both path and url are set"}
	case !hasPath && !hasURL:
		return &format.InvalidSourceError{Reason: "empty source"}
	}
	return nil
}
