package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SOURCE_API_TOKEN", "token")
	t.Setenv("SYNC_TIMEZONE", "UTC")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://api.gapify.ai/v1", cfg.Source.BaseURL)
	assert.Equal(t, []string{"data.payload", "data", "payload", "."}, cfg.Source.EnvelopePaths)
	assert.Equal(t, 100, cfg.Source.PageSize)
	assert.Equal(t, MessageModeFetch, cfg.Source.MessageMode)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, int32(15), cfg.Storage.Postgres.MaxConns)
	assert.Equal(t, 3, cfg.Sync.ConversationConcurrency)
	assert.Equal(t, 5, cfg.Sync.MessageConcurrency)
	assert.Equal(t, time.Duration(0), cfg.Sync.Lookback)
	assert.Equal(t, time.UTC, cfg.Location)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SOURCE_API_TOKEN", "token")
	t.Setenv("SOURCE_BASE_URL", "https://app.gapify.ai/api/v1/accounts/65/")
	t.Setenv("SOURCE_ENVELOPE_PATHS", " payload , data ")
	t.Setenv("SOURCE_MESSAGE_MODE", "AUTO")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SYNC_CONVERSATION_CONCURRENCY", "8")
	t.Setenv("SYNC_LOOKBACK", "6h")
	t.Setenv("SYNC_TIMEZONE", "UTC")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://app.gapify.ai/api/v1/accounts/65", cfg.Source.BaseURL)
	assert.Equal(t, []string{"payload", "data"}, cfg.Source.EnvelopePaths)
	assert.Equal(t, MessageModeAuto, cfg.Source.MessageMode)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, 8, cfg.Sync.ConversationConcurrency)
	assert.Equal(t, 6*time.Hour, cfg.Sync.Lookback)
}

func TestLoadConfigReportsAllProblems(t *testing.T) {
	t.Setenv("SOURCE_API_TOKEN", "")
	t.Setenv("STORAGE_DRIVER", "oracle")
	t.Setenv("SYNC_MESSAGE_CONCURRENCY", "0")
	t.Setenv("SYNC_TIMEZONE", "UTC")

	_, err := LoadConfig()
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{"SOURCE_API_TOKEN", "STORAGE_DRIVER", "SYNC_MESSAGE_CONCURRENCY"} {
		assert.True(t, strings.Contains(msg, want), "expected %q in %q", want, msg)
	}
}

func TestLoadLocalConfigSkipsSourceToken(t *testing.T) {
	t.Setenv("SOURCE_API_TOKEN", "")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SYNC_TIMEZONE", "UTC")

	cfg, err := LoadLocalConfig()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)

	require.Error(t, cfg.Validate())
}

func TestBuildDSN(t *testing.T) {
	cfg := PostgresConfig{User: "u", Password: "p", Host: "db", Port: 5432, Database: "gapify"}
	assert.Equal(t, "postgres://u:p@db:5432/gapify", cfg.BuildDSN())

	cfg.DSN = "postgres://override"
	assert.Equal(t, "postgres://override", cfg.BuildDSN())
}
