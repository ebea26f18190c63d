package db

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wuwenbin0122/convo-sync/internal/models"
)

// dialect captures the SQL differences between the relational stores.
type dialect struct {
	name        string
	placeholder func(n int) string
	columnType  func(models.ColumnType) string
	// conflict renders the clause that turns the insert into an upsert.
	conflict func(schema models.Schema) string
	// inlineIndexes puts secondary indexes inside CREATE TABLE (MySQL has no
	// CREATE INDEX IF NOT EXISTS).
	inlineIndexes bool
}

var postgresDialect = dialect{
	name:        "postgres",
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	columnType: func(t models.ColumnType) string {
		switch t {
		case models.ColumnID:
			return "TEXT PRIMARY KEY"
		case models.ColumnTime:
			return "TIMESTAMPTZ"
		case models.ColumnBool:
			return "BOOLEAN"
		case models.ColumnJSON:
			return "JSONB"
		default:
			return "TEXT"
		}
	},
	conflict: excludedConflict("EXCLUDED"),
}

var sqliteDialect = dialect{
	name:        "sqlite",
	placeholder: func(int) string { return "?" },
	columnType: func(t models.ColumnType) string {
		switch t {
		case models.ColumnID:
			return "TEXT PRIMARY KEY"
		case models.ColumnTime:
			return "TIMESTAMP"
		case models.ColumnBool:
			return "BOOLEAN"
		default:
			return "TEXT"
		}
	},
	conflict: excludedConflict("excluded"),
}

var mysqlDialect = dialect{
	name:        "mysql",
	placeholder: func(int) string { return "?" },
	columnType: func(t models.ColumnType) string {
		switch t {
		case models.ColumnID:
			return "VARCHAR(64) NOT NULL PRIMARY KEY"
		case models.ColumnText:
			return "VARCHAR(255) NULL"
		case models.ColumnTime:
			return "DATETIME(3) NULL"
		case models.ColumnBool:
			return "BOOLEAN NULL"
		case models.ColumnJSON:
			return "JSON NULL"
		default:
			return "TEXT NULL"
		}
	},
	conflict: func(schema models.Schema) string {
		sets := make([]string, 0, len(schema.Columns)-1)
		for _, col := range schema.Columns[1:] {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", col.Name, col.Name))
		}
		return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	},
	inlineIndexes: true,
}

func excludedConflict(alias string) func(models.Schema) string {
	return func(schema models.Schema) string {
		sets := make([]string, 0, len(schema.Columns)-1)
		for _, col := range schema.Columns[1:] {
			sets = append(sets, fmt.Sprintf("%s = %s.%s", col.Name, alias, col.Name))
		}
		return "ON CONFLICT (id) DO UPDATE SET " + strings.Join(sets, ", ")
	}
}

// upsertSQL renders an insert that overwrites every non-key column when the id
// already exists.
func (d dialect) upsertSQL(schema models.Schema) string {
	names := schema.ColumnNames()
	marks := make([]string, len(names))
	for i := range names {
		marks[i] = d.placeholder(i + 1)
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s",
		schema.Table,
		strings.Join(names, ", "),
		strings.Join(marks, ", "),
		d.conflict(schema),
	)
}

// schemaSQL renders the CREATE TABLE / CREATE INDEX statements for schema.
func (d dialect) schemaSQL(schema models.Schema) []string {
	lines := make([]string, 0, len(schema.Columns)+len(schema.Indexes))
	for _, col := range schema.Columns {
		lines = append(lines, fmt.Sprintf("    %s %s", col.Name, d.columnType(col.Type)))
	}
	if d.inlineIndexes {
		for _, column := range schema.Indexes {
			lines = append(lines, fmt.Sprintf("    INDEX %s (%s)", indexName(schema, column), column))
		}
	}

	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", schema.Table, strings.Join(lines, ",\n")),
	}
	if !d.inlineIndexes {
		for _, column := range schema.Indexes {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", indexName(schema, column), schema.Table, column))
		}
	}

	return stmts
}

func indexName(schema models.Schema, column string) string {
	return fmt.Sprintf("idx_%s_%s", schema.Table, column)
}

// bindArgs returns the record values in column order with JSON blobs passed
// as text, which every driver accepts for JSON, JSONB and TEXT columns.
func bindArgs(rec models.Record) []any {
	args := rec.Args()
	for i, arg := range args {
		if raw, ok := arg.(json.RawMessage); ok {
			args[i] = string(raw)
		}
	}
	return args
}
