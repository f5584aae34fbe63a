package storage

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	go_ora "github.com/sijms/go-ora/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricing-research/internal/config"
	"github.com/JakeFAU/pricing-research/internal/research"
	"github.com/JakeFAU/pricing-research/internal/storage/memory"
	"github.com/JakeFAU/pricing-research/internal/storage/postgres"
	"github.com/JakeFAU/pricing-research/internal/storage/sqlstore"
)

// NewDefaultSelector registers every supported backend using cfg for connection settings.
func NewDefaultSelector(cfg config.StorageConfig, logger *zap.Logger) *Selector {
	sel := NewSelector(logger)
	sel.Register(research.StorageMemory, func(context.Context) (research.Storage, error) {
		return memory.NewStore(), nil
	})
	sel.Register(research.StorageSQLite, func(ctx context.Context) (research.Storage, error) {
		if cfg.SQLite.Path == "" {
			return nil, fmt.Errorf("storage.sqlite.path is required")
		}
		// SQLite allows a single writer.
		opts := sqlstore.Options{MaxOpenConns: 1, EnsureSchema: cfg.EnsureSchema}
		return sqlstore.Open(ctx, sqlstore.SQLite, cfg.SQLite.Path, cfg.Table, opts, logger)
	})
	sel.Register(research.StoragePostgreSQL, func(ctx context.Context) (research.Storage, error) {
		return postgres.New(ctx, postgres.Config{
			DSN:             PostgresDSN(cfg.Postgres),
			Table:           cfg.Table,
			MaxConns:        int32(cfg.Postgres.MaxOpenConns),
			MinConns:        int32(cfg.Postgres.MaxIdleConns),
			MaxConnLifetime: lifetime(cfg.Postgres),
			EnsureSchema:    cfg.EnsureSchema,
		})
	})
	sel.Register(research.StorageMySQL, func(ctx context.Context) (research.Storage, error) {
		return sqlstore.Open(ctx, sqlstore.MySQL, MySQLDSN(cfg.MySQL), cfg.Table, sqlOptions(cfg.MySQL, cfg.EnsureSchema), logger)
	})
	sel.Register(research.StorageSQLServer, func(ctx context.Context) (research.Storage, error) {
		return sqlstore.Open(ctx, sqlstore.SQLServer, SQLServerDSN(cfg.SQLServer), cfg.Table,
			sqlOptions(cfg.SQLServer, cfg.EnsureSchema), logger)
	})
	sel.Register(research.StorageOracle, func(ctx context.Context) (research.Storage, error) {
		return sqlstore.Open(ctx, sqlstore.Oracle, OracleDSN(cfg.Oracle), cfg.Table, sqlOptions(cfg.Oracle, false), logger)
	})
	return sel
}

func sqlOptions(db config.DBConfig, ensureSchema bool) sqlstore.Options {
	return sqlstore.Options{
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: lifetime(db),
		EnsureSchema:    ensureSchema,
	}
}

func lifetime(db config.DBConfig) time.Duration {
	return time.Duration(db.ConnMaxLifetimeSeconds) * time.Second
}

func hostPort(db config.DBConfig) string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

// PostgresDSN builds a postgres:// URL unless an explicit DSN is configured.
func PostgresDSN(db config.DBConfig) string {
	if db.DSN != "" {
		return db.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(db.User, db.Password),
		Host:     hostPort(db),
		Path:     "/" + db.Name,
		RawQuery: query(db.Params).Encode(),
	}
	return u.String()
}

// MySQLDSN builds a go-sql-driver DSN with time parsing enabled.
func MySQLDSN(db config.DBConfig) string {
	if db.DSN != "" {
		return db.DSN
	}
	mc := mysql.NewConfig()
	mc.User = db.User
	mc.Passwd = db.Password
	mc.Net = "tcp"
	mc.Addr = hostPort(db)
	mc.DBName = db.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	if len(db.Params) > 0 {
		mc.Params = make(map[string]string, len(db.Params))
		for k, v := range db.Params {
			mc.Params[k] = v
		}
	}
	return mc.FormatDSN()
}

// SQLServerDSN builds a sqlserver:// URL.
func SQLServerDSN(db config.DBConfig) string {
	if db.DSN != "" {
		return db.DSN
	}
	q := query(db.Params)
	if db.Name != "" {
		q.Set("database", db.Name)
	}
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(db.User, db.Password),
		Host:     hostPort(db),
		RawQuery: q.Encode(),
	}
	return u.String()
}

// OracleDSN builds an oracle:// URL where Name is the service name.
func OracleDSN(db config.DBConfig) string {
	if db.DSN != "" {
		return db.DSN
	}
	return go_ora.BuildUrl(db.Host, db.Port, db.Name, db.User, db.Password, db.Params)
}

func query(params map[string]string) url.Values {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return q
}
