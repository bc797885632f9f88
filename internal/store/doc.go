// Package store opens the survey databases the worker reads from.
//
// Two drivers are supported:
//   - sqlite: github.com/mattn/go-sqlite3, used for local copies and tests
//   - postgres: github.com/jackc/pgx/v5 through database/sql, used for the
//     consolidated database
//
// # Read-only access
//
// The worker never writes. SQLite connections run with query_only=ON and
// PostgreSQL sessions with default_transaction_read_only=on, so a bug in
// statement generation cannot modify survey data.
//
// # Connection scopes
//
// Every request acquires its own *sql.Conn through Conn and releases it when
// it is done, whether it succeeded or failed. Requests never share a
// transaction.
//
// # Database Configuration (SQLite)
//
//   - query_only=ON: reject writes
//   - busy_timeout=5000: wait for locks held by the ingest process
//   - no connection cap beyond MaxOpenConns: readers do not contend
package store
