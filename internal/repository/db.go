package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/cfdi-bills/internal/common"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DB is the run-history store handle. Pool is set only for Postgres.
type DB struct {
	SQL     *sql.DB
	Pool    *pgxpool.Pool
	Dialect Dialect
}

// DialectFor picks the driver from the DSN: postgres:// and postgresql://
// URLs go to pgx, anything else is treated as a SQLite path (":memory:"
// included).
func DialectFor(dsn string) Dialect {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// Open connects to the configured store and makes sure the schema exists.
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, common.InvalidInputErrorf("database dsn is required")
	}

	d := DialectFor(cfg.DSN)
	logger.Info("connecting to database", "dialect", string(d))

	var (
		db  *DB
		err error
	)
	switch d {
	case DialectPostgres:
		db, err = openPostgres(ctx, cfg)
	default:
		db, err = openSQLite(cfg.DSN)
	}
	if err != nil {
		logger.Error("failed to connect to database", "dialect", string(d), "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}

	if err := db.migrate(ctx); err != nil {
		Close(db, logger)
		logger.Error("failed to create schema", "error", err)
		return nil, fmt.Errorf("%w: create schema: %v", common.ErrDatabase, err)
	}

	logger.Info("successfully connected to database", "dialect", string(d))
	return db, nil
}

func openPostgres(ctx context.Context, cfg common.DatabaseConfig) (*DB, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "cfdi-bills"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &DB{SQL: stdlib.OpenDBFromPool(pool), Pool: pool, Dialect: DialectPostgres}, nil
}

func openSQLite(dsn string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one connection keeps ":memory:" databases alive and avoids SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)
	return &DB{SQL: sqlDB, Dialect: DialectSQLite}, nil
}

const createBillRuns = `CREATE TABLE IF NOT EXISTS bill_runs (
	id             TEXT PRIMARY KEY,
	source_path    TEXT NOT NULL,
	content_hash   TEXT NOT NULL,
	invoice_number TEXT NOT NULL,
	vendor_id      TEXT NOT NULL,
	mode           TEXT NOT NULL,
	status         TEXT NOT NULL,
	degraded       BOOLEAN NOT NULL,
	draft          TEXT,
	bill_id        TEXT NOT NULL,
	error_message  TEXT NOT NULL,
	started_at     TEXT NOT NULL,
	finished_at    TEXT NOT NULL
)`

const createBillRunsStartedIdx = `CREATE INDEX IF NOT EXISTS bill_runs_started_at_idx ON bill_runs (started_at)`

func (db *DB) migrate(ctx context.Context) error {
	for _, stmt := range []string{createBillRuns, createBillRunsStartedIdx} {
		if _, err := db.SQL.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (db *DB) rebind(query string) string {
	if db.Dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Close closes the database connections gracefully
func Close(db *DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("closing database connections")
	if db.SQL != nil {
		if err := db.SQL.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}
	if db.Pool != nil {
		db.Pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings the store.
func HealthCheck(ctx context.Context, db *DB, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if db.Pool != nil {
		return db.Pool.Ping(ctx)
	}
	return db.SQL.PingContext(ctx)
}
