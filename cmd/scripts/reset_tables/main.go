package main

import (
	"context"
	"log"

	"github.com/wuwenbin0122/convo-sync/config"
	"github.com/wuwenbin0122/convo-sync/db"
	store "github.com/wuwenbin0122/convo-sync/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if !cfg.ConfirmReset {
		log.Fatal("refusing to drop synced tables; set CONFIRM_RESET=yes")
	}

	ctx := context.Background()
	pool, err := cfg.Pool().Open(ctx)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.ResetTables(ctx, pool, store.PostgresSchemaStatements); err != nil {
		log.Fatalf("reset tables: %v", err)
	}

	log.Println("conversations, messages and users tables recreated")
}
