package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wuwenbin0122/convo-sync/internal/models"
	"github.com/wuwenbin0122/convo-sync/internal/utils"
)

// Postgres is the default store. pgxpool.Acquire blocks when every connection
// is busy, so MaxConns bounds concurrent writes across the whole pipeline.
type Postgres struct {
	Pool    *pgxpool.Pool
	upserts map[string]string
}

func NewPostgres(ctx context.Context, cfg utils.PostgresConfig) (*Postgres, error) {
	dsn := cfg.BuildDSN()
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns >= 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(cfg.ConnectTimeout))
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	return &Postgres{Pool: pool, upserts: upsertStatements(postgresDialect)}, nil
}

func (p *Postgres) Driver() string { return utils.DriverPostgres }

func (p *Postgres) Close(context.Context) error {
	if p == nil || p.Pool == nil {
		return nil
	}
	p.Pool.Close()
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if p == nil || p.Pool == nil {
		return fmt.Errorf("postgres: pool not initialised")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.Pool.Ping(ctx)
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if p == nil || p.Pool == nil {
		return fmt.Errorf("postgres: pool not initialised")
	}

	for _, schema := range models.Schemas() {
		for _, stmt := range postgresDialect.schemaSQL(schema) {
			if _, err := p.Pool.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("postgres: ensure schema %s: %w", schema.Table, err)
			}
		}
	}

	return nil
}

// Upsert inserts rec or overwrites every non-key column of the existing row.
func (p *Postgres) Upsert(ctx context.Context, rec models.Record) error {
	if p == nil || p.Pool == nil {
		return fmt.Errorf("postgres: pool not initialised")
	}
	if rec.ID == "" {
		return fmt.Errorf("postgres: upsert %s: %w", rec.Table(), errEmptyID)
	}

	stmt, err := statementFor(p.upserts, postgresDialect, rec.Schema)
	if err != nil {
		return err
	}

	if _, err := p.Pool.Exec(ctx, stmt, bindArgs(rec)...); err != nil {
		return fmt.Errorf("postgres: upsert %s %s: %w", rec.Table(), rec.ID, describePgError(err))
	}
	return nil
}

// describePgError adds the SQLSTATE class to server-side errors so that
// integrity problems can be told apart from missing tables in the logs.
func describePgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch {
	case pgerrcode.IsIntegrityConstraintViolation(pgErr.Code):
		return fmt.Errorf("integrity constraint violation (%s): %w", pgErr.Code, err)
	case pgErr.Code == pgerrcode.UndefinedTable, pgErr.Code == pgerrcode.UndefinedColumn:
		return fmt.Errorf("schema out of date, run migrate (%s): %w", pgErr.Code, err)
	case pgerrcode.IsDataException(pgErr.Code):
		return fmt.Errorf("invalid value (%s): %w", pgErr.Code, err)
	default:
		return err
	}
}

// PostgresSchemaStatements returns the DDL EnsureSchema runs for schema.
func PostgresSchemaStatements(schema models.Schema) []string {
	return postgresDialect.schemaSQL(schema)
}
