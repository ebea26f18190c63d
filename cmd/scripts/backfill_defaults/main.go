package main

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/wuwenbin0122/convo-sync/config"
	"github.com/wuwenbin0122/convo-sync/db"
	"github.com/wuwenbin0122/convo-sync/internal/normalize"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	pool, err := cfg.Pool().Open(ctx)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	touched, err := db.BackfillJSONDefaults(ctx, pool, normalize.JSONDefaults())
	if err != nil {
		log.Fatalf("backfill: %v", err)
	}

	columns := make([]string, 0, len(touched))
	for column := range touched {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	fmt.Println("rows backfilled:")
	for _, column := range columns {
		fmt.Printf("- %s: %d\n", column, touched[column])
	}

	fmt.Printf("done at %s\n", time.Now().Format(time.RFC3339))
}
