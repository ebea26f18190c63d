package utils

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"

	MessageModeFetch    = "fetch"
	MessageModeEmbedded = "embedded"
	MessageModeAuto     = "auto"
)

type Config struct {
	Source   SourceConfig
	Storage  StorageConfig
	Sync     SyncConfig
	Lock     LockConfig
	Report   ReportConfig
	Ops      OpsConfig
	Logging  LoggingConfig
	Location *time.Location
}

type SourceConfig struct {
	BaseURL           string
	APIToken          string
	AuthHeader        string
	ConversationsPath string
	MessagesPath      string
	EnvelopePaths     []string
	PageSize          int
	MaxPages          int
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MessageMode       string
}

type StorageConfig struct {
	Driver     string
	Postgres   PostgresConfig
	MySQL      SQLConfig
	SQLitePath string
	Mongo      MongoConfig
}

type PostgresConfig struct {
	DSN               string
	Host              string
	Port              int
	User              string
	Password          string
	Database          string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

type SQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type SyncConfig struct {
	ConversationConcurrency int
	MessageConcurrency      int
	FetchTimeout            time.Duration
	WriteTimeout            time.Duration
	RunTimeout              time.Duration
	Schedule                string
	Timezone                string
	Lookback                time.Duration
}

type LockConfig struct {
	RedisAddr string
	Key       string
	TTL       time.Duration
}

type ReportConfig struct {
	NATSURL string
	Subject string
}

type OpsConfig struct {
	Addr      string
	JWTSecret string
	TokenTTL  time.Duration
}

type LoggingConfig struct {
	Level        string
	Encoding     string
	Development  bool
	EnableCaller bool
	ServiceName  string
}

// LoadConfig reads and validates the full configuration.
func LoadConfig() (*Config, error) {
	return load(true)
}

// LoadLocalConfig is LoadConfig without the support API checks, for commands
// that never call it.
func LoadLocalConfig() (*Config, error) {
	return load(false)
}

func load(requireSource bool) (*Config, error) {
	pgPort, _ := strconv.Atoi(envOrDefault("POSTGRES_PORT", "5432"))

	cfg := &Config{
		Source: SourceConfig{
			BaseURL:           strings.TrimRight(envOrDefault("SOURCE_BASE_URL", "https://api.gapify.ai/v1"), "/"),
			APIToken:          strings.TrimSpace(os.Getenv("SOURCE_API_TOKEN")),
			AuthHeader:        envOrDefault("SOURCE_AUTH_HEADER", "Authorization"),
			ConversationsPath: envOrDefault("SOURCE_CONVERSATIONS_PATH", "/conversations"),
			MessagesPath:      envOrDefault("SOURCE_MESSAGES_PATH", "/conversations/{id}/messages"),
			EnvelopePaths:     parseList(envOrDefault("SOURCE_ENVELOPE_PATHS", "data.payload,data,payload,.")),
			PageSize:          parseInt(envOrDefault("SOURCE_PAGE_SIZE", "100"), 100),
			MaxPages:          parseInt(envOrDefault("SOURCE_MAX_PAGES", "50"), 50),
			Timeout:           parseDuration(envOrDefault("SOURCE_TIMEOUT", "20s"), 20*time.Second),
			RequestsPerSecond: parseFloat(envOrDefault("SOURCE_RPS", "5"), 5),
			Burst:             parseInt(envOrDefault("SOURCE_BURST", "5"), 5),
			MessageMode:       strings.ToLower(envOrDefault("SOURCE_MESSAGE_MODE", MessageModeFetch)),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(envOrDefault("STORAGE_DRIVER", DriverPostgres)),
			Postgres: PostgresConfig{
				DSN:               os.Getenv("POSTGRES_DSN"),
				Host:              envOrDefault("POSTGRES_HOST", "localhost"),
				Port:              pgPort,
				User:              envOrDefault("POSTGRES_USER", "postgres"),
				Password:          envOrDefault("POSTGRES_PASSWORD", "postgres"),
				Database:          envOrDefault("POSTGRES_DB", "gapify_db"),
				MaxConns:          parseInt32(envOrDefault("POSTGRES_MAX_CONNS", "15"), 15),
				MinConns:          parseInt32(envOrDefault("POSTGRES_MIN_CONNS", "1"), 1),
				MaxConnLifetime:   parseDuration(envOrDefault("POSTGRES_MAX_CONN_LIFETIME", "1h"), time.Hour),
				MaxConnIdleTime:   parseDuration(envOrDefault("POSTGRES_MAX_CONN_IDLE", "30m"), 30*time.Minute),
				HealthCheckPeriod: parseDuration(envOrDefault("POSTGRES_HEALTH_CHECK_PERIOD", "1m"), time.Minute),
				ConnectTimeout:    parseDuration(envOrDefault("POSTGRES_CONNECT_TIMEOUT", "5s"), 5*time.Second),
			},
			MySQL: SQLConfig{
				DSN:             envOrDefault("MYSQL_DSN", "root:@tcp(localhost:3306)/gapify_db?parseTime=true"),
				MaxOpenConns:    parseInt(envOrDefault("MYSQL_MAX_OPEN_CONNS", "10"), 10),
				MaxIdleConns:    parseInt(envOrDefault("MYSQL_MAX_IDLE_CONNS", "5"), 5),
				ConnMaxLifetime: parseDuration(envOrDefault("MYSQL_CONN_MAX_LIFETIME", "5m"), 5*time.Minute),
			},
			SQLitePath: envOrDefault("SQLITE_PATH", "convo-sync.db"),
			Mongo: MongoConfig{
				URI:            envOrDefault("MONGO_URI", "mongodb://localhost:27017"),
				Database:       envOrDefault("MONGO_DATABASE", "gapify"),
				ConnectTimeout: parseDuration(envOrDefault("MONGO_CONNECT_TIMEOUT", "5s"), 5*time.Second),
			},
		},
		Sync: SyncConfig{
			ConversationConcurrency: parseInt(envOrDefault("SYNC_CONVERSATION_CONCURRENCY", "3"), 3),
			MessageConcurrency:      parseInt(envOrDefault("SYNC_MESSAGE_CONCURRENCY", "5"), 5),
			FetchTimeout:            parseDuration(envOrDefault("SYNC_FETCH_TIMEOUT", "30s"), 30*time.Second),
			WriteTimeout:            parseDuration(envOrDefault("SYNC_WRITE_TIMEOUT", "10s"), 10*time.Second),
			RunTimeout:              parseDuration(envOrDefault("SYNC_RUN_TIMEOUT", "30m"), 30*time.Minute),
			Schedule:                envOrDefault("SYNC_SCHEDULE", "*/15 * * * *"),
			Timezone:                envOrDefault("SYNC_TIMEZONE", "Local"),
			Lookback:                parseDuration(envOrDefault("SYNC_LOOKBACK", "0"), 0),
		},
		Lock: LockConfig{
			RedisAddr: strings.TrimSpace(os.Getenv("REDIS_ADDR")),
			Key:       envOrDefault("SYNC_LOCK_KEY", "convo-sync:run"),
			TTL:       parseDuration(envOrDefault("SYNC_LOCK_TTL", "30m"), 30*time.Minute),
		},
		Report: ReportConfig{
			NATSURL: strings.TrimSpace(os.Getenv("NATS_URL")),
			Subject: envOrDefault("NATS_SUBJECT", "convo-sync.runs"),
		},
		Ops: OpsConfig{
			Addr:      strings.TrimSpace(os.Getenv("OPS_ADDR")),
			JWTSecret: strings.TrimSpace(os.Getenv("OPS_JWT_SECRET")),
			TokenTTL:  parseDuration(envOrDefault("OPS_TOKEN_TTL", "24h"), 24*time.Hour),
		},
		Logging: LoggingConfig{
			Level:        strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
			Encoding:     strings.ToLower(envOrDefault("LOG_ENCODING", "console")),
			Development:  parseBool(envOrDefault("LOG_DEVELOPMENT", "false"), false),
			EnableCaller: parseBool(envOrDefault("LOG_CALLER", "false"), false),
			ServiceName:  envOrDefault("SERVICE_NAME", "convo-sync"),
		},
	}

	loc, err := time.LoadLocation(cfg.Sync.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: SYNC_TIMEZONE %q: %w", cfg.Sync.Timezone, err)
	}
	cfg.Location = loc

	if err := cfg.validate(requireSource); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	return c.validate(true)
}

func (c *Config) validate(requireSource bool) error {
	var problems []string

	if requireSource && c.Source.APIToken == "" {
		problems = append(problems, "SOURCE_API_TOKEN is required")
	}
	if c.Source.BaseURL == "" {
		problems = append(problems, "SOURCE_BASE_URL is required")
	}
	if !strings.Contains(c.Source.MessagesPath, "{id}") {
		problems = append(problems, "SOURCE_MESSAGES_PATH must contain {id}")
	}
	if len(c.Source.EnvelopePaths) == 0 {
		problems = append(problems, "SOURCE_ENVELOPE_PATHS must list at least one path")
	}

	switch c.Source.MessageMode {
	case MessageModeFetch, MessageModeEmbedded, MessageModeAuto:
	default:
		problems = append(problems, fmt.Sprintf("SOURCE_MESSAGE_MODE %q is not one of fetch, embedded, auto", c.Source.MessageMode))
	}

	switch c.Storage.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite, DriverMongo:
	default:
		problems = append(problems, fmt.Sprintf("STORAGE_DRIVER %q is not one of postgres, mysql, sqlite, mongo", c.Storage.Driver))
	}

	if c.Sync.ConversationConcurrency <= 0 {
		problems = append(problems, "SYNC_CONVERSATION_CONCURRENCY must be positive")
	}
	if c.Sync.MessageConcurrency <= 0 {
		problems = append(problems, "SYNC_MESSAGE_CONCURRENCY must be positive")
	}

	if len(problems) > 0 {
		return errors.New("config: " + strings.Join(problems, "; "))
	}

	return nil
}

func (c PostgresConfig) BuildDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.Database)
}

func envOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt32(value string, fallback int32) int32 {
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return int32(i)
}

func parseInt(value string, fallback int) int {
	i, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return i
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
