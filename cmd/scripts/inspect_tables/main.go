package main

import (
	"context"
	"fmt"

	"github.com/wuwenbin0122/convo-sync/config"
	"github.com/wuwenbin0122/convo-sync/db"
	"github.com/wuwenbin0122/convo-sync/internal/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	pool, err := cfg.Pool().Open(ctx)
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	for _, schema := range models.Schemas() {
		stats, err := db.InspectTable(ctx, pool, schema.Table)
		if err != nil {
			panic(err)
		}

		if stats.Missing {
			fmt.Printf("%s: missing (run `convo-sync migrate`)\n", stats.Table)
			continue
		}

		fmt.Printf("%s: %d rows\n", stats.Table, stats.Rows)
		for _, col := range stats.Columns {
			nullable := ""
			if col.Nullable {
				nullable = ", null"
			}
			fmt.Printf("- %s (%s%s)\n", col.Name, col.DataType, nullable)
		}
	}

	recent, err := db.RecentConversations(ctx, pool, cfg.RecentLimit)
	if err != nil {
		panic(err)
	}
	if len(recent) == 0 {
		return
	}

	fmt.Println("recent conversations:")
	for _, conv := range recent {
		status, last := "-", "-"
		if conv.Status != nil {
			status = *conv.Status
		}
		if conv.LastActivityAt != nil {
			last = conv.LastActivityAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("- %s  %-10s  %s  %d messages\n", conv.ID, status, last, conv.Messages)
	}
}
