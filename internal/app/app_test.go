package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tableio/internal/acquire"
	"github.com/JonMunkholm/tableio/internal/config"
	"github.com/JonMunkholm/tableio/internal/core"
	"github.com/JonMunkholm/tableio/internal/plan"
	"github.com/JonMunkholm/tableio/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	shared := filepath.Join(root, "shared")
	require.NoError(t, os.MkdirAll(shared, 0o755))
	return &config.Config{
		Storage: config.StorageConfig{
			UploadDir:   filepath.Join(root, "uploads"),
			WriteDir:    filepath.Join(root, "out"),
			DownloadDir: filepath.Join(root, "downloads"),
			Mounts:      []string{"shared=" + shared},
		},
		Download: config.DownloadConfig{Timeout: time.Minute, MaxBytes: 1 << 20, CacheSize: 2},
		Eval:     config.EvalConfig{MaxConcurrent: 2, MaxWaitTime: time.Second, ParallelLoads: 2, Timeout: time.Minute},
	}
}

func TestOpenStore_MemoryWithoutDatabase(t *testing.T) {
	st, closeFn, err := OpenStore(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &store.Memory{}, st)
}

func TestNewService(t *testing.T) {
	cfg := testConfig(t)
	svc, err := NewService(cfg, store.NewMemory())
	require.NoError(t, err)

	assert.Equal(t, []string{"shared"}, svc.MountNames())
	assert.Equal(t, 2, svc.LimiterStatus().MaxConcurrent)
	assert.DirExists(t, cfg.Storage.UploadDir)
	assert.DirExists(t, cfg.Storage.DownloadDir)

	src := filepath.Join(cfg.Storage.Mounts[0][len("shared="):], "a.csv")
	require.NoError(t, os.WriteFile(src, []byte("x\n1\n"), 0o644))
	res, err := svc.ReadNode(context.Background(), core.NewReadState(plan.LocalPath(src)))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Table.NumRows())

	outside := filepath.Join(t.TempDir(), "b.csv")
	require.NoError(t, os.WriteFile(outside, []byte("x\n2\n"), 0o644))
	_, err = svc.ReadNode(context.Background(), core.NewReadState(plan.LocalPath(outside)))
	assert.ErrorIs(t, err, acquire.ErrOutsideRoot)

	target := core.NewWriteState()
	target.Directory = "../escaped"
	_, err = svc.WriteNode(context.Background(), target, plan.Unnamed(res.Table))
	assert.ErrorIs(t, err, acquire.ErrOutsideRoot)
}

func TestNewService_BadMount(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Mounts = []string{"broken"}
	_, err := NewService(cfg, store.NewMemory())
	assert.Error(t, err)
}

func TestNewResolver_S3NeedsKeys(t *testing.T) {
	cfg := testConfig(t)
	cfg.S3 = config.S3Config{Endpoint: "localhost:9000"}
	_, err := NewResolver(cfg)
	assert.Error(t, err)
}
