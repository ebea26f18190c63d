// Package db holds the connection helpers and queries used by the
// maintenance scripts. The sync itself writes through internal/db.
package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ScriptPool tunes the pool a maintenance script opens.
type ScriptPool struct {
	URL string
	// StatementTimeout caps every statement server side; zero leaves the
	// server default.
	StatementTimeout time.Duration
	// LockTimeout bounds waits on table locks held by a running sync, which
	// matters for DROP TABLE in reset_tables.
	LockTimeout time.Duration
}

const (
	scriptMaxConns = 4
	scriptAppName  = "convo-sync-scripts"
	dialTimeout    = 5 * time.Second
)

func (p ScriptPool) config() (*pgxpool.Config, error) {
	if p.URL == "" {
		return nil, errors.New("postgres connection url is empty")
	}

	cfg, err := pgxpool.ParseConfig(p.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	cfg.MaxConns = scriptMaxConns
	cfg.MinConns = 0
	cfg.ConnConfig.ConnectTimeout = dialTimeout

	params := cfg.ConnConfig.RuntimeParams
	if _, ok := params["application_name"]; !ok {
		params["application_name"] = scriptAppName
	}
	if p.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(p.StatementTimeout.Milliseconds(), 10)
	}
	if p.LockTimeout > 0 {
		params["lock_timeout"] = strconv.FormatInt(p.LockTimeout.Milliseconds(), 10)
	}

	return cfg, nil
}

// Open connects and waits for the server to answer a ping.
func (p ScriptPool) Open(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := p.config()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres %s: %w", cfg.ConnConfig.Host, err)
	}

	return pool, nil
}
