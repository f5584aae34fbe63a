// Package postgres provides the Postgres-backed research store.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/JakeFAU/pricing-research/internal/research"
	"github.com/JakeFAU/pricing-research/internal/storage/sqlquery"
)

// Config controls the Postgres connection pool used for research rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// EnsureSchema creates the table and indexes on startup when set.
	EnsureSchema bool
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Ping(context.Context) error
	Close()
}

// Store reads and writes research snapshots in Postgres.
type Store struct {
	pool  pool
	table string
}

const selectList = `id,
	COALESCE(sku, ''),
	COALESCE(url, ''),
	COALESCE(marketplace, ''),
	COALESCE(marketplace_id, ''),
	COALESCE(description, ''),
	COALESCE(brand, ''),
	COALESCE(category, ''),
	COALESCE(strategy, ''),
	COALESCE(sellers::text, '[]'),
	conducted_at`

// New creates a pool-backed Store using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres dsn is required")
	}
	table, err := sqlquery.Table(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := &Store{pool: p, table: table}
	if cfg.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			p.Close()
			return nil, err
		}
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := sqlquery.Table(table)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p, table: name}, nil
}

// EnsureSchema creates the research table and its lookup indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	sku TEXT,
	url TEXT,
	marketplace TEXT,
	marketplace_id TEXT,
	description TEXT,
	brand TEXT,
	category TEXT,
	strategy TEXT NOT NULL,
	sellers JSONB NOT NULL DEFAULT '[]'::jsonb,
	conducted_at TIMESTAMPTZ NOT NULL
)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_url_idx ON %s (url, conducted_at DESC)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_marketplace_idx ON %s (marketplace, marketplace_id, conducted_at DESC)`,
			s.table, s.table),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure research schema: %w", err)
		}
	}
	return nil
}

// Ping verifies the pool can reach the server.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Save inserts a snapshot row.
func (s *Store) Save(ctx context.Context, snap research.Snapshot) error {
	query, args, err := sqlquery.Insert(s.table, snap)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...); err != nil {
		return fmt.Errorf("insert research: %w", err)
	}
	return nil
}

// Retrieve returns snapshots matching criteria, newest first.
func (s *Store) Retrieve(ctx context.Context, criteria research.Criteria) ([]research.Snapshot, error) {
	query, args, err := sqlquery.Select(s.table, selectList, criteria)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return nil, fmt.Errorf("query research: %w", err)
	}
	defer rows.Close()

	out := make([]research.Snapshot, 0)
	for rows.Next() {
		var (
			snap    research.Snapshot
			sellers string
		)
		if err := rows.Scan(
			&snap.ID,
			&snap.SKU,
			&snap.URL,
			&snap.Marketplace,
			&snap.MarketplaceID,
			&snap.Description,
			&snap.Brand,
			&snap.Category,
			&snap.Strategy,
			&sellers,
			&snap.ConductedAt,
		); err != nil {
			return nil, fmt.Errorf("scan research: %w", err)
		}
		if snap.Sellers, err = sqlquery.DecodeSellers([]byte(sellers)); err != nil {
			return nil, err
		}
		snap.ConductedAt = snap.ConductedAt.UTC()
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate research: %w", err)
	}
	return out, nil
}

// Update applies changes to matching rows.
func (s *Store) Update(ctx context.Context, criteria research.Criteria, changes research.Changes) (int64, error) {
	query, args, err := sqlquery.Update(s.table, criteria, changes)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return 0, fmt.Errorf("update research: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes matching rows.
func (s *Store) Delete(ctx context.Context, criteria research.Criteria) (int64, error) {
	query, args, err := sqlquery.Delete(s.table, criteria)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return 0, fmt.Errorf("delete research: %w", err)
	}
	return tag.RowsAffected(), nil
}
