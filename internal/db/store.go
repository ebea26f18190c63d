package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/wuwenbin0122/convo-sync/internal/models"
	"github.com/wuwenbin0122/convo-sync/internal/utils"
)

// Store persists normalized records. Upsert is safe for concurrent use; each
// implementation queues callers on its connection pool instead of failing when
// the pool is exhausted.
type Store interface {
	Upsert(ctx context.Context, rec models.Record) error
	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
	Driver() string
}

var errEmptyID = errors.New("record has no id")

// Open connects to the store selected by cfg.Driver.
func Open(ctx context.Context, cfg utils.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case utils.DriverPostgres, "":
		return NewPostgres(ctx, cfg.Postgres)
	case utils.DriverMySQL:
		return NewMySQL(ctx, cfg.MySQL)
	case utils.DriverSQLite:
		return NewSQLite(ctx, cfg.SQLitePath)
	case utils.DriverMongo:
		return NewMongo(ctx, cfg.Mongo)
	default:
		return nil, fmt.Errorf("db: unknown storage driver %q", cfg.Driver)
	}
}

// upsertStatements renders the upsert for every known table once.
func upsertStatements(d dialect) map[string]string {
	stmts := make(map[string]string)
	for _, schema := range models.Schemas() {
		stmts[schema.Table] = d.upsertSQL(schema)
	}
	return stmts
}

func statementFor(stmts map[string]string, d dialect, schema models.Schema) (string, error) {
	if stmt, ok := stmts[schema.Table]; ok {
		return stmt, nil
	}
	if schema.Table == "" || len(schema.Columns) == 0 {
		return "", fmt.Errorf("%s: record has no schema", d.name)
	}
	return d.upsertSQL(schema), nil
}
