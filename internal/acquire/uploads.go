package acquire

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/tableio/internal/format"
)

// ErrInvalidFilename is returned for upload names that are blank or only dots.
var ErrInvalidFilename = errors.New("invalid upload filename")

// Upload is one persisted upload.
type Upload struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Path       string          `json:"path"`
	Size       int64           `json:"size"`
	Category   format.Category `json:"category"`
	UploadedAt time.Time       `json:"uploaded_at"`
}

// UploadStore persists uploads as {dir}/{uuid}/{name}.
type UploadStore struct {
	dir string
}

// NewUploadStore creates dir if needed.
func NewUploadStore(dir string) (*UploadStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("upload dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &UploadStore{dir: dir}, nil
}

// Dir returns the storage root.
func (s *UploadStore) Dir() string { return s.dir }

// Save stores r under a fresh id. Only the base of name is kept.
func (s *UploadStore) Save(name string, r io.Reader) (Upload, error) {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if strings.Trim(name, ".") == "" || name == "/" {
		return Upload{}, ErrInvalidFilename
	}

	id := uuid.NewString()
	dir := filepath.Join(s.dir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Upload{}, err
	}
	p := filepath.Join(dir, name)
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		os.RemoveAll(dir)
		return Upload{}, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.RemoveAll(dir)
		return Upload{}, fmt.Errorf("save upload: %w", err)
	}

	cat, _ := format.Detect(name)
	return Upload{ID: id, Name: name, Path: p, Size: n, Category: cat, UploadedAt: time.Now().UTC()}, nil
}

// List returns persisted uploads, newest first.
func (s *UploadStore) List() ([]Upload, error) {
	ids, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []Upload
	for _, d := range ids {
		if !d.IsDir() {
			continue
		}
		if _, err := uuid.Parse(d.Name()); err != nil {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.dir, d.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			info, err := f.Info()
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			cat, _ := format.Detect(f.Name())
			out = append(out, Upload{
				ID:         d.Name(),
				Name:       f.Name(),
				Path:       filepath.Join(s.dir, d.Name(), f.Name()),
				Size:       info.Size(),
				Category:   cat,
				UploadedAt: info.ModTime().UTC(),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].Path < out[j].Path
		}
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out, nil
}

// Paths returns the local path of every persisted upload.
func (s *UploadStore) Paths() ([]string, error) {
	uploads, err := s.List()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(uploads))
	for i, u := range uploads {
		out[i] = u.Path
	}
	return out, nil
}

// Delete removes an upload by id. An unknown id wraps fs.ErrNotExist.
func (s *UploadStore) Delete(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: upload id %q", ErrInvalidFilename, id)
	}
	dir := filepath.Join(s.dir, id)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("upload %s: %w", id, err)
	}
	return os.RemoveAll(dir)
}
