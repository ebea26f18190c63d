package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wuwenbin0122/convo-sync/internal/models"
	"github.com/wuwenbin0122/convo-sync/internal/utils"
)

// Mongo stores one document per record keyed by _id. Each table becomes a
// collection of the same name.
type Mongo struct {
	Client   *mongo.Client
	Database *mongo.Database
}

func NewMongo(ctx context.Context, cfg utils.MongoConfig) (*Mongo, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo: uri is required")
	}

	clientOpts := options.Client().ApplyURI(cfg.URI)
	if cfg.ConnectTimeout > 0 {
		clientOpts.SetServerSelectionTimeout(cfg.ConnectTimeout)
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(cfg.ConnectTimeout))
	defer cancel()

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	return &Mongo{Client: client, Database: client.Database(cfg.Database)}, nil
}

func (m *Mongo) Driver() string { return utils.DriverMongo }

// Collection returns the collection holding records of schema.
func (m *Mongo) Collection(schema models.Schema) *mongo.Collection {
	return m.Database.Collection(schema.Table)
}

func (m *Mongo) Close(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return m.Client.Disconnect(ctx)
}

func (m *Mongo) Ping(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return fmt.Errorf("mongo: client not initialised")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return m.Client.Ping(ctx, nil)
}

func (m *Mongo) EnsureSchema(ctx context.Context) error {
	return m.EnsureCollections(ctx)
}

// EnsureCollections creates the secondary indexes; collections themselves are
// created lazily by the first write.
func (m *Mongo) EnsureCollections(ctx context.Context) error {
	if m == nil || m.Database == nil {
		return fmt.Errorf("mongo: database not initialised")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, schema := range models.Schemas() {
		for _, column := range schema.Indexes {
			_, err := m.Collection(schema).Indexes().CreateOne(ctx, mongo.IndexModel{
				Keys:    bson.D{{Key: column, Value: 1}},
				Options: options.Index().SetName(indexName(schema, column)),
			})
			if err != nil {
				return fmt.Errorf("mongo: ensure %s index: %w", schema.Table, err)
			}
		}
	}

	return nil
}

// Upsert replaces the whole document, which matches the SQL stores' overwrite
// of every non-key column.
func (m *Mongo) Upsert(ctx context.Context, rec models.Record) error {
	if m == nil || m.Database == nil {
		return fmt.Errorf("mongo: database not initialised")
	}
	if rec.ID == "" {
		return fmt.Errorf("mongo: upsert %s: %w", rec.Table(), errEmptyID)
	}

	doc, err := document(rec)
	if err != nil {
		return fmt.Errorf("mongo: upsert %s %s: %w", rec.Table(), rec.ID, err)
	}

	_, err = m.Collection(rec.Schema).ReplaceOne(ctx, bson.M{"_id": rec.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo: upsert %s %s: %w", rec.Table(), rec.ID, err)
	}
	return nil
}

// document converts rec into a bson document. JSON columns are stored as
// embedded documents and arrays rather than strings so they stay queryable.
func document(rec models.Record) (bson.D, error) {
	doc := make(bson.D, 0, len(rec.Schema.Columns))
	doc = append(doc, bson.E{Key: "_id", Value: rec.ID})

	for _, col := range rec.Schema.Columns {
		if col.Type == models.ColumnID {
			continue
		}

		value := rec.Values[col.Name]
		if raw, ok := value.(json.RawMessage); ok {
			var decoded any
			if err := json.Unmarshal(raw, &decoded); err != nil {
				return nil, fmt.Errorf("decode %s: %w", col.Name, err)
			}
			value = decoded
		}
		doc = append(doc, bson.E{Key: col.Name, Value: value})
	}

	return doc, nil
}

func timeoutOrDefault(value time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return 10 * time.Second
}
