package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"

	"github.com/roach88/surveydb/internal/querysql"
)

// sqliteDriver is go-sqlite3 with the worker's pragmas applied to every new
// connection.
const sqliteDriver = "sqlite3_surveydb"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: applyPragmas,
	})
}

// Options configures Open.
type Options struct {
	// Driver is "sqlite" or "postgres" (aliases "sqlite3", "postgresql",
	// "pgx" are accepted).
	Driver string

	// DSN is a file path for SQLite and a connection URL for PostgreSQL.
	DSN string

	// Namespace is the PostgreSQL schema holding the tables, e.g.
	// "cdb_latiss". Defaults to "public". Ignored for SQLite.
	Namespace string

	// MaxOpenConns caps the pool. Defaults to 10.
	MaxOpenConns int

	// ConnectTimeout bounds the initial ping. Defaults to 5 seconds.
	ConnectTimeout time.Duration
}

// Store is a read-only handle on one survey database.
type Store struct {
	db        *sql.DB
	dialect   querysql.Dialect
	namespace string
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, opts Options) (*Store, error) {
	dialect, err := querysql.ParseDialect(opts.Driver)
	if err != nil {
		return nil, err
	}
	if opts.DSN == "" {
		return nil, fmt.Errorf("no DSN given for %s database", dialect)
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	var db *sql.DB
	namespace := ""
	switch dialect {
	case querysql.SQLite:
		db, err = sql.Open(sqliteDriver, opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	case querysql.Postgres:
		cfg, err := pgx.ParseConfig(opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to parse database URL: %w", err)
		}
		if cfg.RuntimeParams == nil {
			cfg.RuntimeParams = map[string]string{}
		}
		cfg.RuntimeParams["application_name"] = "surveydb"
		cfg.RuntimeParams["default_transaction_read_only"] = "on"
		db = stdlib.OpenDB(*cfg)

		namespace = opts.Namespace
		if namespace == "" {
			namespace = "public"
		}
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxOpenConns / 2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Store{db: db, dialect: dialect, namespace: namespace}, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect of the database.
func (s *Store) Dialect() querysql.Dialect {
	return s.dialect
}

// Namespace returns the PostgreSQL schema that qualifies table names, or ""
// for SQLite.
func (s *Store) Namespace() string {
	return s.namespace
}

// Conn acquires a dedicated connection. The caller must Close it.
func (s *Store) Conn(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return conn, nil
}

// applyPragmas sets required SQLite configuration on a new connection.
func applyPragmas(conn *sqlite3.SQLiteConn) error {
	pragmas := []string{
		"PRAGMA query_only = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma, nil); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
