package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the tables used by Postgres and PostgresDeadlines.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	key        TEXT PRIMARY KEY,
	version    BIGINT NOT NULL,
	data       BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS deadlines (
	game_id TEXT PRIMARY KEY,
	due_at  BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS deadlines_due_at ON deadlines (due_at);
`

const (
	sqlGetRecord    = `SELECT version, data FROM records WHERE key = $1`
	sqlCreateRecord = `INSERT INTO records (key, version, data) VALUES ($1, 1, $2) ON CONFLICT (key) DO NOTHING`
	sqlCASRecord    = `UPDATE records SET version = version + 1, data = $3, updated_at = now() WHERE key = $1 AND version = $2`
	sqlRecordExists = `SELECT EXISTS (SELECT 1 FROM records WHERE key = $1)`

	sqlPutDeadline    = `INSERT INTO deadlines (game_id, due_at) VALUES ($1, $2) ON CONFLICT (game_id) DO UPDATE SET due_at = EXCLUDED.due_at`
	sqlRemoveDeadline = `DELETE FROM deadlines WHERE game_id = $1`
	sqlDueDeadlines   = `SELECT game_id FROM deadlines WHERE due_at <= $1 ORDER BY due_at, game_id LIMIT $2`
)

// DB is the subset of *pgxpool.Pool the Postgres adapters use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// DialPostgres opens a pool and pings the server.
func DialPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// Migrate applies Schema.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Postgres keeps records in a single table. Conditional writes are an UPDATE
// guarded on the version column.
type Postgres struct {
	db DB
}

// NewPostgres wraps db. Call Migrate first.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Get(ctx context.Context, key string) (Record, error) {
	rec := Record{Key: key}
	err := p.db.QueryRow(ctx, sqlGetRecord, key).Scan(&rec.Version, &rec.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, wrap("get", key, err)
	}
	return rec, nil
}

func (p *Postgres) Create(ctx context.Context, key string, data []byte) (Record, error) {
	tag, err := p.db.Exec(ctx, sqlCreateRecord, key, data)
	if err != nil {
		return Record{}, wrap("create", key, err)
	}
	if tag.RowsAffected() == 0 {
		return Record{}, ErrExists
	}
	return Record{Key: key, Version: 1, Data: data}, nil
}

func (p *Postgres) CompareAndSwap(ctx context.Context, key string, version int64, data []byte) (Record, error) {
	tag, err := p.db.Exec(ctx, sqlCASRecord, key, version, data)
	if err != nil {
		return Record{}, wrap("cas", key, err)
	}
	if tag.RowsAffected() == 1 {
		return Record{Key: key, Version: version + 1, Data: data}, nil
	}
	var exists bool
	if err := p.db.QueryRow(ctx, sqlRecordExists, key).Scan(&exists); err != nil {
		return Record{}, wrap("cas", key, err)
	}
	if !exists {
		return Record{}, ErrNotFound
	}
	return Record{}, ErrConflict
}

// PostgresDeadlines keeps the deadline index in the deadlines table.
type PostgresDeadlines struct {
	db DB
}

// NewPostgresDeadlines wraps db. Call Migrate first.
func NewPostgresDeadlines(db DB) *PostgresDeadlines {
	return &PostgresDeadlines{db: db}
}

func (d *PostgresDeadlines) Put(ctx context.Context, gameID string, at time.Time) error {
	if _, err := d.db.Exec(ctx, sqlPutDeadline, gameID, at.UnixMilli()); err != nil {
		return wrap("put deadline", gameID, err)
	}
	return nil
}

func (d *PostgresDeadlines) Remove(ctx context.Context, gameID string) error {
	if _, err := d.db.Exec(ctx, sqlRemoveDeadline, gameID); err != nil {
		return wrap("remove deadline", gameID, err)
	}
	return nil
}

func (d *PostgresDeadlines) Due(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := d.db.Query(ctx, sqlDueDeadlines, now.UnixMilli(), lim)
	if err != nil {
		return nil, wrap("due deadlines", "", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrap("due deadlines", "", err)
	}
	return ids, nil
}
