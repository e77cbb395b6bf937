package repository

import (
	"WaDesk/internal/config"
	"WaDesk/internal/lib/sl"
	"WaDesk/internal/store"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const documentsCollection = "documents"

// MongoStore implements the whole-document store contract on MongoDB.
// Each logical document key maps to a single record holding the full JSON
// payload, replaced wholesale on write to keep file-store semantics.
type MongoStore struct {
	clientOptions *options.ClientOptions
	database      string
	log           *slog.Logger
}

func NewMongoStore(conf *config.Config, logger *slog.Logger) (*MongoStore, error) {
	if !conf.Mongo.Enabled {
		return nil, fmt.Errorf("mongo backend selected but mongo is disabled in config")
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	return &MongoStore{
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
		log:           logger.With(sl.Module("mongostore")),
	}, nil
}

func (m *MongoStore) connect(ctx context.Context) (*mongo.Client, error) {
	connection, err := mongo.Connect(ctx, m.clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect error: %w", err)
	}
	return connection, nil
}

func (m *MongoStore) disconnect(ctx context.Context, connection *mongo.Client) {
	_ = connection.Disconnect(ctx)
}

type documentRecord struct {
	Key  string `bson:"key"`
	Data string `bson:"data"`
}

func (m *MongoStore) ReadDocument(ctx context.Context, key string, v any) error {
	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(documentsCollection)
	filter := bson.D{{Key: "key", Value: key}}

	var record documentRecord
	err = collection.FindOne(ctx, filter).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return store.ErrNotFound
		}
		return fmt.Errorf("mongodb find error: %w", err)
	}

	if err := json.Unmarshal([]byte(record.Data), v); err != nil {
		return fmt.Errorf("decoding document %q: %w", key, err)
	}
	return nil
}

func (m *MongoStore) WriteDocument(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding document %q: %w", key, err)
	}

	connection, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer m.disconnect(ctx, connection)

	collection := connection.Database(m.database).Collection(documentsCollection)
	filter := bson.D{{Key: "key", Value: key}}
	record := documentRecord{Key: key, Data: string(data)}
	opts := options.Replace().SetUpsert(true)

	_, err = collection.ReplaceOne(ctx, filter, record, opts)
	if err != nil {
		if mongo.IsTimeout(err) {
			return store.ErrBusy
		}
		return fmt.Errorf("mongodb replace error: %w", err)
	}
	return nil
}
