package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/mattn/go-sqlite3"

	"github.com/xtxerr/dossier/config"
	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/errors"
	"github.com/xtxerr/dossier/internal/validation"
)

// =============================================================================
// SQL Configuration
// =============================================================================

// Dialect selects the database/sql driver.
type Dialect string

const (
	DialectDuckDB Dialect = "duckdb"
	DialectSQLite Dialect = "sqlite3"
)

// SQLConfig holds SQL store configuration options.
type SQLConfig struct {
	// Dialect is the driver name.
	Dialect Dialect

	// DSN is the database connection string.
	DSN string

	// Table holds one row per document.
	Table string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// ConnMaxLifetime is the maximum lifetime of a connection.
	ConnMaxLifetime time.Duration

	// QueryTimeout is the default timeout for statements.
	QueryTimeout time.Duration
}

// DefaultSQLConfig returns a SQLConfig with sensible defaults.
func DefaultSQLConfig() SQLConfig {
	return SQLConfig{
		Dialect:         DialectDuckDB,
		Table:           config.DefaultSQLTable,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		QueryTimeout:    config.DefaultStoreQueryTimeout,
	}
}

// =============================================================================
// SQL Store
// =============================================================================

// SQL stores documents as JSON text in a single table keyed by partition
// path and name.
type SQL struct {
	db     *sql.DB
	shared *sqlShared
	path   string
}

type sqlShared struct {
	config  SQLConfig
	queries sqlQueries
	mu      sync.RWMutex
	closed  bool
}

type sqlQueries struct {
	has, upsert, get, names, allPaths, childPaths, age, del string
}

// OpenSQL opens a SQL store and creates its table if needed.
func OpenSQL(cfg SQLConfig) (*SQL, error) {
	if cfg.Dialect != DialectDuckDB && cfg.Dialect != DialectSQLite {
		return nil, fmt.Errorf("sql dialect %q: %w", cfg.Dialect, errors.ErrUnsupported)
	}

	db, err := sql.Open(string(cfg.Dialect), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s, err := NewSQL(db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenDuckDB opens a SQL store on a DuckDB database. An empty DSN opens an
// in-memory database.
func OpenDuckDB(cfg SQLConfig) (*SQL, error) {
	cfg.Dialect = DialectDuckDB
	return OpenSQL(cfg)
}

// OpenSQLite opens a SQL store on a SQLite database file.
func OpenSQLite(cfg SQLConfig) (*SQL, error) {
	cfg.Dialect = DialectSQLite
	return OpenSQL(cfg)
}

// NewSQL wraps an open database. The table is created if needed.
func NewSQL(db *sql.DB, cfg SQLConfig) (*SQL, error) {
	if cfg.Table == "" {
		cfg.Table = config.DefaultSQLTable
	}
	if err := validation.ValidateName(cfg.Table, tableRules); err != nil {
		return nil, fmt.Errorf("sql table: %w", err)
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = config.DefaultStoreQueryTimeout
	}

	s := &SQL{
		db: db,
		shared: &sqlShared{
			config:  cfg,
			queries: buildQueries(cfg.Table),
		},
	}
	if err := s.InitSchema(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// tableRules keeps the table name a plain SQL identifier since it is
// spliced into statements.
var tableRules = validation.NameRules{MinLength: 1, MaxLength: 63, AllowUnders: true}

func buildQueries(table string) sqlQueries {
	return sqlQueries{
		has: `SELECT COUNT(*) FROM ` + table + ` WHERE path = ? AND name = ?`,
		upsert: `INSERT INTO ` + table + ` (path, name, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (path, name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		get:        `SELECT value FROM ` + table + ` WHERE path = ? AND name = ?`,
		names:      `SELECT name FROM ` + table + ` WHERE path = ? ORDER BY name`,
		allPaths:   `SELECT DISTINCT path FROM ` + table + ` WHERE path <> ''`,
		childPaths: `SELECT DISTINCT path FROM ` + table + ` WHERE path LIKE ? ESCAPE '\'`,
		age:        `SELECT updated_at FROM ` + table + ` WHERE path = ? AND name = ?`,
		del:        `DELETE FROM ` + table + ` WHERE path = ? AND name = ?`,
	}
}

// InitSchema creates the document table.
//
// This is idempotent - safe to run multiple times.
func (s *SQL) InitSchema(ctx context.Context) error {
	migrations := []struct {
		name string
		sql  string
	}{
		{
			name: "documents.table",
			sql: `CREATE TABLE IF NOT EXISTS ` + s.shared.config.Table + ` (
				path       VARCHAR NOT NULL,
				name       VARCHAR NOT NULL,
				value      TEXT    NOT NULL,
				updated_at BIGINT  NOT NULL,
				PRIMARY KEY (path, name)
			)`,
		},
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
	}
	return nil
}

// Close closes the database. Partitions share the connection, so closing
// any of them closes all.
func (s *SQL) Close() error {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()

	if s.shared.closed {
		return nil
	}
	s.shared.closed = true

	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *SQL) DB() *sql.DB {
	return s.db
}

// Health checks database connectivity.
func (s *SQL) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// queryContext bounds ctx by the configured query timeout and fails fast
// once the store is closed.
func (s *SQL) queryContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	s.shared.mu.RLock()
	closed := s.shared.closed
	s.shared.mu.RUnlock()
	if closed {
		return nil, nil, ErrStoreClosed
	}
	ctx, cancel := context.WithTimeout(ctx, s.shared.config.QueryTimeout)
	return ctx, cancel, nil
}

func (s *SQL) Has(ctx context.Context, name string) (bool, error) {
	ctx, cancel, err := s.queryContext(ctx)
	if err != nil {
		return false, err
	}
	defer cancel()

	var n int
	if err := s.db.QueryRowContext(ctx, s.shared.queries.has, s.path, name).Scan(&n); err != nil {
		return false, fmt.Errorf("has %s: %w", name, err)
	}
	return n > 0, nil
}

func (s *SQL) Store(ctx context.Context, name string, value any) error {
	if err := checkName(name); err != nil {
		return err
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	ctx, cancel, err := s.queryContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if _, err := s.db.ExecContext(ctx, s.shared.queries.upsert, s.path, name, string(b), time.Now().UnixNano()); err != nil {
		return fmt.Errorf("store %s: %w", name, err)
	}
	return nil
}

func (s *SQL) Retrieve(ctx context.Context, name string) (any, error) {
	ctx, cancel, err := s.queryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var raw string
	err = s.db.QueryRowContext(ctx, s.shared.queries.get, s.path, name).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, notFound(s.path, name)
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve %s: %w", name, err)
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return doc, nil
}

func (s *SQL) Names(ctx context.Context) ([]string, error) {
	ctx, cancel, err := s.queryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	rows, err := s.db.QueryContext(ctx, s.shared.queries.names, s.path)
	if err != nil {
		return nil, fmt.Errorf("list names: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQL) Dirs(ctx context.Context) ([]date.Date, error) {
	ctx, cancel, err := s.queryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var rows *sql.Rows
	if s.path == "" {
		rows, err = s.db.QueryContext(ctx, s.shared.queries.allPaths)
	} else {
		rows, err = s.db.QueryContext(ctx, s.shared.queries.childPaths, validation.SafeLikePrefix(s.path+"/"))
	}
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	seen := make(map[date.Date]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		seg, ok := childSegment(s.path, p)
		if !ok {
			continue
		}
		if d, ok := parseSegment(seg); ok {
			seen[d] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	dirs := make([]date.Date, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	date.Sort(dirs)
	return dirs, nil
}

func (s *SQL) Sub(d date.Date) Store {
	return &SQL{db: s.db, shared: s.shared, path: joinPath(s.path, d)}
}

func (s *SQL) Age(ctx context.Context, name string) (time.Duration, error) {
	ctx, cancel, err := s.queryContext(ctx)
	if err != nil {
		return 0, err
	}
	defer cancel()

	var nanos int64
	err = s.db.QueryRowContext(ctx, s.shared.queries.age, s.path, name).Scan(&nanos)
	if err == sql.ErrNoRows {
		return 0, notFound(s.path, name)
	}
	if err != nil {
		return 0, fmt.Errorf("age %s: %w", name, err)
	}
	return time.Since(time.Unix(0, nanos)), nil
}

func (s *SQL) Delete(ctx context.Context, name string) error {
	ctx, cancel, err := s.queryContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if _, err := s.db.ExecContext(ctx, s.shared.queries.del, s.path, name); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

var _ Store = (*SQL)(nil)
