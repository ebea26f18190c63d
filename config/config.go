// Package config loads the few settings the maintenance scripts under
// cmd/scripts need. The service itself uses internal/utils.LoadConfig.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/wuwenbin0122/convo-sync/db"
)

type Config struct {
	DBURL            string
	RecentLimit      int
	ConfirmReset     bool
	StatementTimeout time.Duration
	LockTimeout      time.Duration
}

var (
	cfg     *Config
	loadErr error
	once    sync.Once
)

func Load() (*Config, error) {
	once.Do(func() {
		if err := loadEnvFiles(); err != nil {
			loadErr = fmt.Errorf("load env files: %w", err)
			return
		}

		dbURL := strings.TrimSpace(os.Getenv("DB_URL"))
		if dbURL == "" {
			dbURL = strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
		}

		cfg = &Config{
			DBURL:        dbURL,
			RecentLimit:  parsePositiveInt(getEnv("SCRIPT_RECENT_LIMIT", "10"), 10),
			ConfirmReset: strings.EqualFold(getEnv("CONFIRM_RESET", ""), "yes"),

			StatementTimeout: parseDuration(getEnv("SCRIPT_STATEMENT_TIMEOUT", "5m"), 5*time.Minute),
			LockTimeout:      parseDuration(getEnv("SCRIPT_LOCK_TIMEOUT", "10s"), 10*time.Second),
		}

		loadErr = cfg.validate()
	})

	return cfg, loadErr
}

func loadEnvFiles() error {
	for _, path := range []string{"config/.env", ".env"} {
		if err := godotenv.Load(path); err != nil {
			var pathErr *fs.PathError
			if errors.As(err, &pathErr) {
				continue
			}
			return err
		}
	}
	return nil
}

func (c *Config) validate() error {
	if c.DBURL == "" {
		return fmt.Errorf("missing required environment variables: DB_URL (or POSTGRES_DSN)")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}

	return strings.TrimSpace(fallback)
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}

	return value
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

// Pool describes the Postgres pool the scripts open.
func (c *Config) Pool() db.ScriptPool {
	return db.ScriptPool{
		URL:              c.DBURL,
		StatementTimeout: c.StatementTimeout,
		LockTimeout:      c.LockTimeout,
	}
}
