package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/tableio/internal/core"
	"github.com/JonMunkholm/tableio/internal/table"
)

// DBTX is the subset of *pgxpool.Pool and pgx.Tx the store uses.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS node_states (
	kind       TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	state      JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (kind, id)
);

CREATE TABLE IF NOT EXISTS node_runs (
	id          UUID        PRIMARY KEY,
	node_id     TEXT        NOT NULL DEFAULT '',
	kind        TEXT        NOT NULL,
	plan        TEXT        NOT NULL DEFAULT '',
	outcome     TEXT        NOT NULL DEFAULT '',
	row_count   INTEGER     NOT NULL DEFAULT 0,
	col_count   INTEGER     NOT NULL DEFAULT 0,
	path        TEXT        NOT NULL DEFAULT '',
	bytes       BIGINT      NOT NULL DEFAULT 0,
	error_code  TEXT        NOT NULL DEFAULT '',
	error       TEXT        NOT NULL DEFAULT '',
	ip_address  TEXT        NOT NULL DEFAULT '',
	user_agent  TEXT        NOT NULL DEFAULT '',
	duration_ms BIGINT      NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS node_runs_created_at_idx ON node_runs (created_at DESC);
CREATE INDEX IF NOT EXISTS node_runs_node_id_idx ON node_runs (node_id);
`

// Postgres stores snapshots as JSONB rows keyed by (kind, id).
type Postgres struct {
	db DBTX
}

// NewPostgres wraps a pool. Call EnsureSchema once at startup.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{db: pool}
}

// EnsureSchema creates the tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) SaveState(ctx context.Context, s core.NodeState) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO node_states (kind, id, state, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind, id) DO UPDATE
		SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		string(s.Kind), s.ID, []byte(s.State), s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save %s state %s: %w", s.Kind, s.ID, err)
	}
	return nil
}

func (p *Postgres) LoadState(ctx context.Context, kind core.NodeKind, id string) (core.NodeState, error) {
	s := core.NodeState{ID: id, Kind: kind}
	var raw []byte
	err := p.db.QueryRow(ctx,
		`SELECT state, updated_at FROM node_states WHERE kind = $1 AND id = $2`,
		string(kind), id,
	).Scan(&raw, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.NodeState{}, fmt.Errorf("%w: %s %s", core.ErrStateNotFound, kind, id)
	}
	if err != nil {
		return core.NodeState{}, fmt.Errorf("load %s state %s: %w", kind, id, err)
	}
	s.State = raw
	return s, nil
}

func (p *Postgres) DeleteState(ctx context.Context, kind core.NodeKind, id string) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM node_states WHERE kind = $1 AND id = $2`, string(kind), id)
	if err != nil {
		return fmt.Errorf("delete %s state %s: %w", kind, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %s", core.ErrStateNotFound, kind, id)
	}
	return nil
}

// ListStates returns snapshots ordered by id, then kind.
func (p *Postgres) ListStates(ctx context.Context) ([]core.NodeState, error) {
	rows, err := p.db.Query(ctx, `SELECT kind, id, state, updated_at FROM node_states ORDER BY id, kind`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]core.NodeState, 0)
	for rows.Next() {
		var (
			s    core.NodeState
			kind string
			raw  []byte
		)
		if err := rows.Scan(&kind, &s.ID, &raw, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Kind = core.NodeKind(kind)
		s.State = raw
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) RecordRun(ctx context.Context, r core.RunRecord) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO node_runs (id, node_id, kind, plan, outcome, row_count, col_count, path, bytes,
			error_code, error, ip_address, user_agent, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		r.ID, r.NodeID, string(r.Kind), r.Plan, string(r.Outcome), r.Rows, r.Cols, r.Path, r.Bytes,
		r.ErrorCode, r.Error, r.IPAddress, r.UserAgent, r.DurationMS, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns matching runs, newest first.
func (p *Postgres) ListRuns(ctx context.Context, f core.RunFilter) ([]core.RunRecord, error) {
	if f.Limit <= 0 {
		f.Limit = core.DefaultRunLimit
	}

	wb := newWhereBuilder()
	wb.Add("node_id", f.NodeID)
	wb.Add("kind", string(f.Kind))
	where, args := wb.Build()

	query := `SELECT id::text, node_id, kind, plan, outcome, row_count, col_count, path, bytes,
		error_code, error, ip_address, user_agent, duration_ms, created_at
		FROM node_runs` + where + fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", wb.NextArgIndex())
	args = append(args, f.Limit)

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]core.RunRecord, 0)
	for rows.Next() {
		var (
			r             core.RunRecord
			kind, outcome string
		)
		if err := rows.Scan(&r.ID, &r.NodeID, &kind, &r.Plan, &outcome, &r.Rows, &r.Cols, &r.Path, &r.Bytes,
			&r.ErrorCode, &r.Error, &r.IPAddress, &r.UserAgent, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Kind = core.NodeKind(kind)
		r.Outcome = table.Outcome(outcome)
		out = append(out, r)
	}
	return out, rows.Err()
}
