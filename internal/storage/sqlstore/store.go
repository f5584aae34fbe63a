// Package sqlstore persists research snapshots through database/sql drivers using sqlx.
//
// One Store implementation serves SQLite, MySQL, SQL Server and Oracle; a
// Dialect names the driver and the table DDL for each.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricing-research/internal/research"
	"github.com/JakeFAU/pricing-research/internal/storage/sqlquery"
)

// Dialect describes one database flavor.
type Dialect struct {
	// Driver is the database/sql driver name.
	Driver string
	// Schema returns the CREATE TABLE statements for table. Nil disables auto-creation.
	Schema func(table string) []string
	// SelectList overrides the selected column list.
	SelectList string
}

// Dialects supported by Store.
var (
	SQLite = Dialect{
		Driver: "sqlite",
		Schema: func(table string) []string {
			return []string{
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
	sellers TEXT NOT NULL,
	conducted_at DATETIME NOT NULL
)`, table),
				fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_url_idx ON %s (url, conducted_at)`, table, table),
				fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_marketplace_idx ON %s (marketplace, marketplace_id, conducted_at)`,
					table, table),
			}
		},
	}
	MySQL = Dialect{
		Driver: "mysql",
		Schema: func(table string) []string {
			return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id VARCHAR(64) PRIMARY KEY,
	sku VARCHAR(255),
	url VARCHAR(2048),
	marketplace VARCHAR(64),
	marketplace_id VARCHAR(255),
	description TEXT,
	brand VARCHAR(255),
	category VARCHAR(255),
	strategy VARCHAR(32) NOT NULL,
	sellers JSON NOT NULL,
	conducted_at DATETIME(6) NOT NULL,
	INDEX %s_marketplace_idx (marketplace, marketplace_id, conducted_at)
)`, table, table)}
		},
	}
	SQLServer = Dialect{
		Driver: "sqlserver",
		Schema: func(table string) []string {
			return []string{fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
CREATE TABLE %s (
	id NVARCHAR(64) PRIMARY KEY,
	sku NVARCHAR(255),
	url NVARCHAR(2048),
	marketplace NVARCHAR(64),
	marketplace_id NVARCHAR(255),
	description NVARCHAR(MAX),
	brand NVARCHAR(255),
	category NVARCHAR(255),
	strategy NVARCHAR(32) NOT NULL,
	sellers NVARCHAR(MAX) NOT NULL,
	conducted_at DATETIME2 NOT NULL
)`, table, table)}
		},
	}
	// Oracle tables are provisioned by DBAs; no DDL is issued. Quoted aliases
	// keep the upper-cased column names mappable to struct tags.
	Oracle = Dialect{
		Driver:     "oracle",
		SelectList: oracleSelectList,
	}
)

const oracleSelectList = `id AS "id", sku AS "sku", url AS "url", marketplace AS "marketplace",
	marketplace_id AS "marketplace_id", description AS "description", brand AS "brand",
	category AS "category", strategy AS "strategy", sellers AS "sellers", conducted_at AS "conducted_at"`

// Store implements research.Storage on top of sqlx.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	table   string
	logger  *zap.Logger
}

type row struct {
	ID            string         `db:"id"`
	SKU           sql.NullString `db:"sku"`
	URL           sql.NullString `db:"url"`
	Marketplace   sql.NullString `db:"marketplace"`
	MarketplaceID sql.NullString `db:"marketplace_id"`
	Description   sql.NullString `db:"description"`
	Brand         sql.NullString `db:"brand"`
	Category      sql.NullString `db:"category"`
	Strategy      sql.NullString `db:"strategy"`
	Sellers       sql.NullString `db:"sellers"`
	ConductedAt   sql.NullTime   `db:"conducted_at"`
}

// Options tunes the connection pool and startup behavior.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// EnsureSchema runs the dialect's DDL after connecting.
	EnsureSchema bool
}

// Open connects to dsn with the dialect's driver and pings it.
func Open(ctx context.Context, dialect Dialect, dsn, table string, opts Options, logger *zap.Logger) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%s dsn is required", dialect.Driver)
	}
	db, err := sqlx.ConnectContext(ctx, dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", dialect.Driver, err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	store, err := New(db, dialect, table, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if !opts.EnsureSchema {
		return store, nil
	}
	if err := store.EnsureSchema(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			store.logger.Warn("close after schema failure", zap.Error(closeErr))
		}
		return nil, err
	}
	return store, nil
}

// New wraps an existing connection.
func New(db *sqlx.DB, dialect Dialect, table string, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	name, err := sqlquery.Table(table)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:      db,
		dialect: dialect,
		table:   name,
		logger:  logger.Named("sqlstore").With(zap.String("driver", db.DriverName())),
	}, nil
}

// EnsureSchema runs the dialect's DDL.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.dialect.Schema == nil {
		return nil
	}
	for _, stmt := range s.dialect.Schema(s.table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure research schema: %w", err)
		}
	}
	s.logger.Debug("research schema ready", zap.String("table", s.table))
	return nil
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", s.db.DriverName(), err)
	}
	return nil
}

// Close shuts down the connection pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.db.DriverName(), err)
	}
	return nil
}

// Save inserts a snapshot row.
func (s *Store) Save(ctx context.Context, snap research.Snapshot) error {
	query, args, err := sqlquery.Insert(s.table, snap)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("insert research: %w", err)
	}
	return nil
}

// Retrieve returns snapshots matching criteria, newest first.
func (s *Store) Retrieve(ctx context.Context, criteria research.Criteria) ([]research.Snapshot, error) {
	query, args, err := sqlquery.Select(s.table, s.dialect.SelectList, criteria)
	if err != nil {
		return nil, err
	}
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query research: %w", err)
	}
	out := make([]research.Snapshot, 0, len(rows))
	for _, r := range rows {
		snap, err := r.snapshot()
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// Update applies changes to matching rows.
func (s *Store) Update(ctx context.Context, criteria research.Criteria, changes research.Changes) (int64, error) {
	query, args, err := sqlquery.Update(s.table, criteria, changes)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, "update research", query, args)
}

// Delete removes matching rows.
func (s *Store) Delete(ctx context.Context, criteria research.Criteria) (int64, error) {
	query, args, err := sqlquery.Delete(s.table, criteria)
	if err != nil {
		return 0, err
	}
	return s.exec(ctx, "delete research", query, args)
}

func (s *Store) exec(ctx context.Context, op, query string, args []any) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return n, nil
}

func (r row) snapshot() (research.Snapshot, error) {
	sellers, err := sqlquery.DecodeSellers([]byte(r.Sellers.String))
	if err != nil {
		return research.Snapshot{}, err
	}
	snap := research.Snapshot{
		ID:            r.ID,
		SKU:           r.SKU.String,
		URL:           r.URL.String,
		Marketplace:   r.Marketplace.String,
		MarketplaceID: r.MarketplaceID.String,
		Description:   r.Description.String,
		Brand:         r.Brand.String,
		Category:      r.Category.String,
		Strategy:      r.Strategy.String,
		Sellers:       sellers,
	}
	if r.ConductedAt.Valid {
		snap.ConductedAt = r.ConductedAt.Time.UTC()
	}
	return snap, nil
}
