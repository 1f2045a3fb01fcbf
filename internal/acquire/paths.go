package acquire

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for a local path that lies outside every
// directory the host allows.
var ErrOutsideRoot = errors.New("path is outside the allowed directories")

// Within reports whether p is root or lies below it. Both paths must be
// absolute; they are compared lexically after cleaning.
func Within(root, p string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(p))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Confine returns the absolute form of p when it lies inside one of roots.
// An empty roots list allows every path.
func Confine(roots []string, p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if len(roots) == 0 {
		return abs, nil
	}
	for _, root := range roots {
		if Within(root, abs) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
}

// AbsRoots cleans and absolutizes dirs, dropping blanks.
func AbsRoots(dirs ...string) ([]string, error) {
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if strings.TrimSpace(d) == "" {
			continue
		}
		abs, err := filepath.Abs(d)
		if err != nil {
			return nil, err
		}
		out = append(out, abs)
	}
	return out, nil
}
