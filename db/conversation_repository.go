package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wuwenbin0122/convo-sync/db/models"
	synced "github.com/wuwenbin0122/convo-sync/internal/models"
)

var errNilPool = errors.New("postgres pool is nil")

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable
}

// InspectTable lists the columns and row count of table. A table that does not
// exist yet is reported as Missing rather than as an error.
func InspectTable(ctx context.Context, pool *pgxpool.Pool, table string) (*models.TableStats, error) {
	if pool == nil {
		return nil, errNilPool
	}

	stats := &models.TableStats{Table: table}

	const columnsQuery = `SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`
	rows, err := pool.Query(ctx, columnsQuery, table)
	if err != nil {
		return nil, fmt.Errorf("query columns of %s: %w", table, err)
	}
	columns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TableColumn, error) {
		var col models.TableColumn
		err := row.Scan(&col.Name, &col.DataType, &col.Nullable)
		return col, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan columns of %s: %w", table, err)
	}
	stats.Columns = columns

	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+pgx.Identifier{table}.Sanitize()).Scan(&stats.Rows); err != nil {
		if isUndefinedTable(err) {
			stats.Missing = true
			return stats, nil
		}
		return nil, fmt.Errorf("count rows of %s: %w", table, err)
	}

	return stats, nil
}

// RecentConversations returns the most recently active conversations with
// their stored message counts.
func RecentConversations(ctx context.Context, pool *pgxpool.Pool, limit int) ([]models.RecentConversation, error) {
	if pool == nil {
		return nil, errNilPool
	}
	if limit <= 0 {
		limit = 10
	}

	const query = `SELECT c.id, c.status, c.last_activity_at, COUNT(m.id) AS messages
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY c.id, c.status, c.last_activity_at
		ORDER BY c.last_activity_at DESC NULLS LAST
		LIMIT $1`
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("query recent conversations: %w", err)
	}

	recent, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.RecentConversation])
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan recent conversations: %w", err)
	}
	return recent, nil
}

// ResetTables drops and recreates every synced table. Stored data is lost.
func ResetTables(ctx context.Context, pool *pgxpool.Pool, createStatements func(synced.Schema) []string) error {
	if pool == nil {
		return errNilPool
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, schema := range synced.Schemas() {
		if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+pgx.Identifier{schema.Table}.Sanitize()+" CASCADE"); err != nil {
			return fmt.Errorf("drop %s: %w", schema.Table, err)
		}
		for _, stmt := range createStatements(schema) {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("create %s: %w", schema.Table, err)
			}
		}
	}

	return tx.Commit(ctx)
}

// BackfillJSONDefaults replaces NULL JSON columns, left by rows written before
// the columns had defaults, with the empty object or array the sync writes
// today. It returns the number of rows touched per table.column.
func BackfillJSONDefaults(ctx context.Context, pool *pgxpool.Pool, defaults map[string]map[string]string) (map[string]int64, error) {
	if pool == nil {
		return nil, errNilPool
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	touched := make(map[string]int64)
	for _, schema := range synced.Schemas() {
		for column, value := range defaults[schema.Table] {
			stmt := fmt.Sprintf("UPDATE %s SET %s = $1::jsonb WHERE %s IS NULL",
				pgx.Identifier{schema.Table}.Sanitize(),
				pgx.Identifier{column}.Sanitize(),
				pgx.Identifier{column}.Sanitize(),
			)
			tag, err := tx.Exec(ctx, stmt, value)
			if err != nil {
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedColumn {
					return nil, fmt.Errorf("%s.%s does not exist, run migrate first: %w", schema.Table, column, err)
				}
				return nil, fmt.Errorf("backfill %s.%s: %w", schema.Table, column, err)
			}
			touched[strings.Join([]string{schema.Table, column}, ".")] = tag.RowsAffected()
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit backfill: %w", err)
	}
	return touched, nil
}
