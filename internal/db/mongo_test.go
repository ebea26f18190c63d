package db_test

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/wuwenbin0122/convo-sync/internal/db"
	"github.com/wuwenbin0122/convo-sync/internal/models"
	"github.com/wuwenbin0122/convo-sync/internal/utils"
)

func TestMongoEnsureCollectionsAndUpsert(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set; skipping mongo integration test")
	}

	database := "convo_sync_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	cfg := utils.MongoConfig{
		URI:            uri,
		Database:       database,
		ConnectTimeout: 5 * time.Second,
	}

	store, err := db.NewMongo(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to connect to mongo: %v", err)
	}
	defer func() {
		ctx := context.Background()
		store.Database.Drop(ctx)
		store.Close(ctx)
	}()

	if err := store.EnsureCollections(context.Background()); err != nil {
		t.Fatalf("ensure collections failed: %v", err)
	}

	ctx := context.Background()

	rec := models.Record{
		Schema: models.MessageSchema,
		ID:     "7",
		Values: map[string]any{
			"conversation_id":       "42",
			"content":               "hello",
			"content_attributes":    json.RawMessage(`{}`),
			"additional_attributes": json.RawMessage(`{}`),
			"attachments":           json.RawMessage(`[{"file_type":"image"}]`),
		},
	}
	for i := 0; i < 2; i++ {
		if err := store.Upsert(ctx, rec); err != nil {
			t.Fatalf("failed to upsert message: %v", err)
		}
	}

	coll := store.Collection(models.MessageSchema)
	n, err := coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 document, got %d", n)
	}

	var result bson.M
	if err := coll.FindOne(ctx, bson.M{"_id": "7"}).Decode(&result); err != nil {
		t.Fatalf("failed to fetch message: %v", err)
	}

	if result["content"] != "hello" {
		t.Fatalf("expected message content 'hello', got %v", result["content"])
	}
	if _, ok := result["attachments"].(bson.A); !ok {
		t.Fatalf("expected attachments stored as array, got %T", result["attachments"])
	}
}
