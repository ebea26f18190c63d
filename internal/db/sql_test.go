package db

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuwenbin0122/convo-sync/internal/models"
)

func TestUpsertSQLByDialect(t *testing.T) {
	pg := postgresDialect.upsertSQL(models.SenderSchema)
	assert.Contains(t, pg, "INSERT INTO users (id, name, email,")
	assert.Contains(t, pg, "VALUES ($1, $2, $3,")
	assert.Contains(t, pg, "ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name")
	assert.NotContains(t, pg, "id = EXCLUDED.id")

	lite := sqliteDialect.upsertSQL(models.SenderSchema)
	assert.Contains(t, lite, "VALUES (?, ?, ?,")
	assert.Contains(t, lite, "email = excluded.email")

	my := mysqlDialect.upsertSQL(models.MessageSchema)
	assert.Contains(t, my, "ON DUPLICATE KEY UPDATE conversation_id = VALUES(conversation_id)")
	assert.NotContains(t, my, "ON CONFLICT")
}

func TestSchemaSQLIndexes(t *testing.T) {
	pg := postgresDialect.schemaSQL(models.MessageSchema)
	require.Len(t, pg, 2)
	assert.Contains(t, pg[0], "id TEXT PRIMARY KEY")
	assert.Contains(t, pg[0], "attachments JSONB")
	assert.Equal(t, "CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages (conversation_id)", pg[1])

	my := mysqlDialect.schemaSQL(models.MessageSchema)
	require.Len(t, my, 1)
	assert.Contains(t, my[0], "INDEX idx_messages_conversation_id (conversation_id)")
	assert.Contains(t, my[0], "content TEXT NULL")

	users := sqliteDialect.schemaSQL(models.SenderSchema)
	assert.Len(t, users, 1)
}

func TestBindArgsPassesJSONAsText(t *testing.T) {
	sent := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rec := models.Record{
		Schema: models.MessageSchema,
		ID:     "7",
		Values: map[string]any{
			"conversation_id": "42",
			"private":         false,
			"sent_at":         sent,
			"attachments":     json.RawMessage(`[]`),
		},
	}

	args := bindArgs(rec)
	require.Len(t, args, len(models.MessageSchema.Columns))
	assert.Equal(t, "7", args[0])
	assert.Equal(t, "42", args[1])
	assert.Nil(t, args[2])
	assert.Equal(t, sent, args[8])
	assert.Equal(t, "[]", args[len(args)-1])
}
