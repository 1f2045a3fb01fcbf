package acquire

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JonMunkholm/tableio/internal/format"
)

var (
	// ErrMountNotFound is returned for an unknown mount name.
	ErrMountNotFound = errors.New("mount not found")
	// ErrOutsideMount is returned when a relative path escapes its mount.
	ErrOutsideMount = errors.New("path escapes mount")
)

// Mounts are the named roots of the file browser.
type Mounts struct {
	roots map[string]string
}

// NewMounts validates and cleans the given name → directory map.
func NewMounts(roots map[string]string) (*Mounts, error) {
	m := &Mounts{roots: make(map[string]string, len(roots))}
	for name, dir := range roots {
		name = strings.TrimSpace(name)
		if name == "" || strings.ContainsAny(name, `/\`) {
			return nil, fmt.Errorf("invalid mount name %q", name)
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("mount %s: %w", name, err)
		}
		m.roots[name] = abs
	}
	return m, nil
}

// Names returns the mount names sorted.
func (m *Mounts) Names() []string {
	out := make([]string, 0, len(m.roots))
	for name := range m.roots {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Roots returns the mount directories in name order.
func (m *Mounts) Roots() []string {
	names := m.Names()
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = m.roots[name]
	}
	return out
}

// Path joins rel onto the mount root, rejecting paths that leave the root.
func (m *Mounts) Path(mount, rel string) (string, error) {
	root, ok := m.roots[mount]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMountNotFound, mount)
	}
	rel = filepath.FromSlash(strings.TrimSpace(rel))
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrOutsideMount, rel)
	}
	p := filepath.Join(root, rel)
	if !Within(root, p) {
		return "", fmt.Errorf("%w: %s", ErrOutsideMount, rel)
	}
	return p, nil
}

// Entry is one item of a directory listing.
type Entry struct {
	Name     string          `json:"name"`
	Path     string          `json:"path"`
	Dir      bool            `json:"dir"`
	Size     int64           `json:"size,omitempty"`
	Category format.Category `json:"category"`
}

// List returns the entries of rel inside mount: directories first, then
// files, each sorted by name. Hidden entries are skipped.
func (m *Mounts) List(mount, rel string) ([]Entry, error) {
	dir, err := m.Path(mount, rel)
	if err != nil {
		return nil, err
	}
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(items))
	for _, it := range items {
		if strings.HasPrefix(it.Name(), ".") {
			continue
		}
		e := Entry{Name: it.Name(), Path: filepath.Join(dir, it.Name()), Dir: it.IsDir()}
		if !e.Dir {
			if info, err := it.Info(); err == nil {
				e.Size = info.Size()
			}
			e.Category, _ = format.Detect(it.Name())
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Dir != out[j].Dir {
			return out[i].Dir
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
