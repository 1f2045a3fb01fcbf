// Package acquire turns source descriptors into local files: URL downloads,
// S3 objects, persisted uploads and file-browser mounts.
package acquire

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/minio/minio-go/v7"

	"github.com/JonMunkholm/tableio/internal/logging"
	"github.com/JonMunkholm/tableio/internal/plan"
)

// Defaults for NewResolver.
const (
	DefaultTimeout   = 60 * time.Second
	DefaultMaxBytes  = 512 << 20
	DefaultCacheSize = 128
	DefaultCacheTTL  = 15 * time.Minute
)

// DownloadError reports a failed fetch of a remote source.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// ErrTooLarge is wrapped by DownloadError when a body exceeds the size cap.
var ErrTooLarge = errors.New("remote file exceeds size limit")

// objectGetter is the part of *minio.Client the resolver uses.
type objectGetter interface {
	FGetObject(ctx context.Context, bucket, object, filePath string, opts minio.GetObjectOptions) error
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// Dir receives downloaded files.
	Dir       string
	Timeout   time.Duration
	MaxBytes  int64
	CacheSize int
	// CacheTTL is how long a download is reused before the URL is fetched
	// again.
	CacheTTL time.Duration
	// S3 enables s3://bucket/key sources when set.
	S3 *minio.Client
}

// Resolver resolves remote sources to local paths. Downloads are cached by
// URL for CacheTTL. Each download lives in its own directory, which is
// deleted on eviction once no caller holds a lease on it.
type Resolver struct {
	dir      string
	client   *http.Client
	maxBytes int64
	ttl      time.Duration
	now      func() time.Time
	cache    *lru.Cache[string, download]
	s3       objectGetter

	mu     sync.Mutex
	leases map[string]int
	stale  map[string]bool
}

type download struct {
	path    string
	fetched time.Time
}

// NewResolver creates the download directory and the cache.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("download dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	r := &Resolver{
		dir:      cfg.Dir,
		client:   &http.Client{Timeout: cfg.Timeout},
		maxBytes: cfg.MaxBytes,
		ttl:      cfg.CacheTTL,
		now:      time.Now,
		leases:   make(map[string]int),
		stale:    make(map[string]bool),
	}
	cache, err := lru.NewWithEvict[string, download](cfg.CacheSize, func(_ string, d download) {
		r.retire(filepath.Dir(d.path))
	})
	if err != nil {
		return nil, err
	}
	r.cache = cache
	if cfg.S3 != nil {
		r.s3 = cfg.S3
	}
	return r, nil
}

// Resolve returns src unchanged when it is local, otherwise fetches it and
// returns the local copy. The copy stays on disk until release is called,
// even if the cache evicts it meanwhile. release is non-nil when err is nil.
// Fetch failures are *DownloadError.
func (r *Resolver) Resolve(ctx context.Context, src plan.Source) (plan.Source, func(), error) {
	if err := src.Validate(); err != nil {
		return plan.Source{}, nil, err
	}
	if !src.IsRemote() {
		return src, func() {}, nil
	}

	raw := strings.TrimSpace(src.URL)
	if p, ok := r.leaseCached(raw); ok {
		return plan.LocalPath(p), r.releaser(filepath.Dir(p)), nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return plan.Source{}, nil, &DownloadError{URL: raw, Err: err}
	}

	dst, err := r.fetch(ctx, raw, u)
	if err != nil {
		var de *DownloadError
		if errors.As(err, &de) {
			return plan.Source{}, nil, err
		}
		return plan.Source{}, nil, &DownloadError{URL: raw, Err: err}
	}

	dir := filepath.Dir(dst)
	r.mu.Lock()
	r.leases[dir]++
	r.mu.Unlock()

	// A concurrent fetch of the same URL may have been cached first; this
	// copy then serves only the current lease.
	if _, found, _ := r.cache.PeekOrAdd(raw, download{path: dst, fetched: r.now()}); found {
		r.mu.Lock()
		r.stale[dir] = true
		r.mu.Unlock()
	}
	logging.FromContext(ctx).Info("remote source downloaded", "url", raw, "path", dst)
	return plan.LocalPath(dst), r.releaser(dir), nil
}

// ResolveAll resolves every source, stopping at the first failure. The
// returned release frees all of them.
func (r *Resolver) ResolveAll(ctx context.Context, srcs []plan.Source) ([]plan.Source, func(), error) {
	out := make([]plan.Source, len(srcs))
	releases := make([]func(), 0, len(srcs))
	releaseAll := func() {
		for _, f := range releases {
			f()
		}
	}
	for i, s := range srcs {
		resolved, release, err := r.Resolve(ctx, s)
		if err != nil {
			releaseAll()
			return nil, nil, err
		}
		releases = append(releases, release)
		out[i] = resolved
	}
	return out, releaseAll, nil
}

// leaseCached returns a fresh cached copy of raw and leases its directory.
// Expired or vanished entries are dropped.
func (r *Resolver) leaseCached(raw string) (string, bool) {
	d, ok := r.cache.Get(raw)
	if !ok {
		return "", false
	}
	if r.now().Sub(d.fetched) <= r.ttl {
		r.mu.Lock()
		_, err := os.Stat(d.path)
		if err == nil {
			r.leases[filepath.Dir(d.path)]++
		}
		r.mu.Unlock()
		if err == nil {
			return d.path, true
		}
	}
	r.cache.Remove(raw)
	return "", false
}

// releaser returns an idempotent release for one lease on dir.
func (r *Resolver) releaser(dir string) func() {
	return sync.OnceFunc(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.leases[dir]--
		if r.leases[dir] > 0 {
			return
		}
		delete(r.leases, dir)
		if r.stale[dir] {
			delete(r.stale, dir)
			os.RemoveAll(dir)
		}
	})
}

// retire deletes an evicted download, or defers that to the last release.
func (r *Resolver) retire(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.leases[dir] > 0 {
		r.stale[dir] = true
		return
	}
	os.RemoveAll(dir)
}

// fetch downloads raw into a new directory under the download dir.
func (r *Resolver) fetch(ctx context.Context, raw string, u *url.URL) (string, error) {
	dir, err := os.MkdirTemp(r.dir, urlKey(raw)+"-")
	if err != nil {
		return "", err
	}
	dst := filepath.Join(dir, fileName(u))
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		err = r.fetchHTTP(ctx, raw, dst)
	case "s3":
		err = r.fetchS3(ctx, u, dst)
	default:
		err = fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return dst, nil
}

func urlKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:8])
}

// fileName keeps the URL's base name so the extension survives for format
// detection.
func fileName(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "download"
	}
	return name
}

func (r *Resolver) fetchHTTP(ctx context.Context, raw, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DownloadError{URL: raw, StatusCode: resp.StatusCode}
	}
	if resp.ContentLength > r.maxBytes {
		return ErrTooLarge
	}
	return r.save(dst, resp.Body)
}

func (r *Resolver) fetchS3(ctx context.Context, u *url.URL, dst string) error {
	if r.s3 == nil {
		return fmt.Errorf("s3 sources are not configured")
	}
	bucket, key := u.Host, strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return fmt.Errorf("s3 url needs a bucket and key")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := r.s3.FGetObject(ctx, bucket, key, dst, minio.GetObjectOptions{}); err != nil {
		return err
	}
	info, err := os.Stat(dst)
	if err != nil {
		return err
	}
	if info.Size() > r.maxBytes {
		return ErrTooLarge
	}
	return nil
}

// save copies at most maxBytes from body to dst through a temp file.
func (r *Resolver) save(dst string, body io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".part-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(body, r.maxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n > r.maxBytes {
		return ErrTooLarge
	}
	return os.Rename(tmp.Name(), dst)
}

// Purge drops every cached download.
func (r *Resolver) Purge() {
	r.cache.Purge()
}
