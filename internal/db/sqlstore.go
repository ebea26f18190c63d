package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/wuwenbin0122/convo-sync/internal/models"
	"github.com/wuwenbin0122/convo-sync/internal/utils"
)

// SQLStore backs the MySQL and SQLite drivers. database/sql blocks callers on
// SetMaxOpenConns once the pool is exhausted.
type SQLStore struct {
	DB      *sql.DB
	dialect dialect
	upserts map[string]string
}

func NewMySQL(ctx context.Context, cfg utils.SQLConfig) (*SQLStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("mysql: dsn is required")
	}

	conn, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql: open: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return newSQLStore(ctx, conn, mysqlDialect)
}

// NewSQLite opens a file database, or a private in-memory one for ":memory:".
// SQLite allows a single writer, so the pool is pinned to one connection and
// busy_timeout makes a contended write wait instead of failing.
func NewSQLite(ctx context.Context, path string) (*SQLStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_time_format=sqlite"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	return newSQLStore(ctx, conn, sqliteDialect)
}

func newSQLStore(ctx context.Context, conn *sql.DB, d dialect) (*SQLStore, error) {
	store := &SQLStore{DB: conn, dialect: d, upserts: upsertStatements(d)}
	if err := store.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) Driver() string { return s.dialect.name }

func (s *SQLStore) Close(context.Context) error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return fmt.Errorf("sql: database not initialised")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("%s: ping: %w", s.dialect.name, err)
	}
	return nil
}

func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return fmt.Errorf("sql: database not initialised")
	}

	for _, schema := range models.Schemas() {
		for _, stmt := range s.dialect.schemaSQL(schema) {
			if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("%s: ensure schema %s: %w", s.dialect.name, schema.Table, err)
			}
		}
	}
	return nil
}

// Upsert inserts rec or overwrites every non-key column of the existing row.
func (s *SQLStore) Upsert(ctx context.Context, rec models.Record) error {
	if s == nil || s.DB == nil {
		return fmt.Errorf("sql: database not initialised")
	}
	if rec.ID == "" {
		return fmt.Errorf("%s: upsert %s: %w", s.dialect.name, rec.Table(), errEmptyID)
	}

	stmt, err := statementFor(s.upserts, s.dialect, rec.Schema)
	if err != nil {
		return err
	}

	if _, err := s.DB.ExecContext(ctx, stmt, bindArgs(rec)...); err != nil {
		return fmt.Errorf("%s: upsert %s %s: %w", s.dialect.name, rec.Table(), rec.ID, err)
	}
	return nil
}
