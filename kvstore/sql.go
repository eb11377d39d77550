package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/MrEthical07/goSession/session"
	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
)

// Dialect selects SQL flavour and database/sql driver name.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite3"
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "pgx"
)

const (
	DefaultTable      = "session_kv"
	connectionTimeout = 5 * time.Second
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// SQL stores values in a two-column table (k primary key, v blob).
type SQL struct {
	db      *sql.DB
	dialect Dialect

	getQ, setQ, delQ string
}

// OpenSQL opens dsn with the driver for dialect, verifies connectivity and
// ensures the table exists.
func OpenSQL(ctx context.Context, dialect Dialect, dsn, table string) (*SQL, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// sqlite allows one writer; serialize through the pool
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("kvstore: ping %s: %w", dialect, err)
	}

	s, err := NewSQL(ctx, db, dialect, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQL wraps an open db. The table is created when missing; an empty
// table name selects "session_kv".
func NewSQL(ctx context.Context, db *sql.DB, dialect Dialect, table string) (*SQL, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("kvstore: invalid table name %q", table)
	}

	s := &SQL{db: db, dialect: dialect}
	var ddl string
	switch dialect {
	case DialectSQLite:
		ddl = `CREATE TABLE IF NOT EXISTS ` + table + ` (k TEXT PRIMARY KEY, v BLOB NOT NULL)`
		s.getQ = `SELECT v FROM ` + table + ` WHERE k = ?`
		s.setQ = `INSERT INTO ` + table + ` (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`
		s.delQ = `DELETE FROM ` + table + ` WHERE k = ?`
	case DialectMySQL:
		ddl = `CREATE TABLE IF NOT EXISTS ` + table + ` (k VARCHAR(191) PRIMARY KEY, v LONGBLOB NOT NULL)`
		s.getQ = `SELECT v FROM ` + table + ` WHERE k = ?`
		s.setQ = `INSERT INTO ` + table + ` (k, v) VALUES (?, ?) ON DUPLICATE KEY UPDATE v = VALUES(v)`
		s.delQ = `DELETE FROM ` + table + ` WHERE k = ?`
	case DialectPostgres:
		ident := pgx.Identifier{table}.Sanitize()
		ddl = `CREATE TABLE IF NOT EXISTS ` + ident + ` (k TEXT PRIMARY KEY, v BYTEA NOT NULL)`
		s.getQ = `SELECT v FROM ` + ident + ` WHERE k = $1`
		s.setQ = `INSERT INTO ` + ident + ` (k, v) VALUES ($1, $2) ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v`
		s.delQ = `DELETE FROM ` + ident + ` WHERE k = $1`
	default:
		return nil, fmt.Errorf("kvstore: unsupported dialect %q", dialect)
	}

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("kvstore: create table: %w", err)
	}
	return s, nil
}

func (s *SQL) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, s.getQ, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: get: %w", err)
	}
	return v, nil
}

func (s *SQL) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, s.setQ, key, value); err != nil {
		return fmt.Errorf("kvstore: set: %w", err)
	}
	return nil
}

func (s *SQL) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.delQ, key); err != nil {
		return fmt.Errorf("kvstore: remove: %w", err)
	}
	return nil
}

// Dialect returns the dialect the store was built for.
func (s *SQL) Dialect() Dialect { return s.dialect }

// Close closes the underlying database.
func (s *SQL) Close() error {
	return s.db.Close()
}
