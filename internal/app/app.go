// Package app wires configuration into the service graph shared by the HTTP
// server and the command-line tool.
package app

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/tableio/internal/acquire"
	"github.com/JonMunkholm/tableio/internal/config"
	"github.com/JonMunkholm/tableio/internal/core"
	"github.com/JonMunkholm/tableio/internal/eval"
	"github.com/JonMunkholm/tableio/internal/store"
)

// OpenStore connects to Postgres when a database URL is configured and
// falls back to the in-memory store otherwise.
func OpenStore(ctx context.Context, cfg *config.Config) (core.StateStore, func(), error) {
	if !cfg.Database.Enabled() {
		slog.Warn("DATABASE_URL not set; node state and run history are kept in memory")
		return store.NewMemory(), func() {}, nil
	}

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}

	// Apply pool configuration from config
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, err
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	pg := store.NewPostgres(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pg, pool.Close, nil
}

// NewService wires the resolver, upload store, mounts, evaluator and
// limiter described by cfg around st.
func NewService(cfg *config.Config, st core.StateStore) (*core.Service, error) {
	resolver, err := NewResolver(cfg)
	if err != nil {
		return nil, err
	}

	uploads, err := acquire.NewUploadStore(cfg.Storage.UploadDir)
	if err != nil {
		return nil, err
	}

	roots, err := cfg.Storage.MountMap()
	if err != nil {
		return nil, err
	}
	mounts, err := acquire.NewMounts(roots)
	if err != nil {
		return nil, err
	}
	for _, name := range mounts.Names() {
		slog.Info("mount registered", "name", name, "dir", roots[name])
	}

	// Local sources are limited to uploads, downloads, mounts and outputs.
	readRoots := append([]string{
		cfg.Storage.UploadDir,
		cfg.Storage.DownloadDir,
		cfg.Storage.WriteDir,
	}, mounts.Roots()...)

	return core.NewService(core.ServiceConfig{
		Store:     st,
		Resolver:  resolver,
		Uploads:   uploads,
		Mounts:    mounts,
		Evaluator: NewEvaluator(cfg),
		Limiter:   core.NewEvalLimiter(cfg.Eval.MaxConcurrent, cfg.Eval.MaxWaitTime),
		WriteDir:  cfg.Storage.WriteDir,
		ReadRoots: readRoots,
		Timeout:   cfg.Eval.Timeout,
	})
}

// NewResolver builds the remote source resolver. s3:// sources are enabled
// when an S3 endpoint is configured.
func NewResolver(cfg *config.Config) (*acquire.Resolver, error) {
	resolverCfg := acquire.ResolverConfig{
		Dir:       cfg.Storage.DownloadDir,
		Timeout:   cfg.Download.Timeout,
		MaxBytes:  cfg.Download.MaxBytes,
		CacheSize: cfg.Download.CacheSize,
		CacheTTL:  cfg.Download.CacheTTL,
	}
	s3cfg := acquire.S3Config(cfg.S3)
	if s3cfg.Enabled() {
		client, err := acquire.NewS3Client(s3cfg)
		if err != nil {
			return nil, err
		}
		resolverCfg.S3 = client
		slog.Info("s3 sources enabled", "endpoint", s3cfg.Endpoint)
	}
	return acquire.NewResolver(resolverCfg)
}

// NewEvaluator builds the plan evaluator.
func NewEvaluator(cfg *config.Config) *eval.Evaluator {
	return eval.New(eval.WithParallelLoads(cfg.Eval.ParallelLoads))
}
