// Package remote is the live channel to the authoritative store: one MongoDB
// document per identity whose payload is the JSON-serialized aggregate.
// Writes are full-document replaces; there is no field-level patching.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/careflowhq/careflow/internal/domain/models"
	"github.com/careflowhq/careflow/internal/migrate"
)

// Channel provides the subscription feed and the push operation against the
// remote document collection.
type Channel struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *zap.Logger
}

type document struct {
	ID        string    `bson:"_id"`
	Payload   string    `bson:"payload"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// NewChannel connects to MongoDB and binds the per-identity aggregate
// collection.
func NewChannel(ctx context.Context, uri, dbName string, logger *zap.Logger) (*Channel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Channel{
		client: client,
		coll:   client.Database(dbName).Collection("aggregates"),
		logger: logger,
	}, nil
}

// Close closes the MongoDB connection.
func (c *Channel) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Subscribe opens a live feed for the one document keyed by identity.
//
// The current document is delivered first: a missing document is created
// with the initial aggregate and that value delivered (first-login
// bootstrap), an existing one is migrated and delivered. Afterwards every
// remote change to the document is migrated and delivered in order. onError
// fires exactly once per failure episode; the feed does not retry on its
// own. The returned handle releases the subscription and is safe to call
// more than once.
func (c *Channel) Subscribe(ctx context.Context, identity string, onData func(models.AppData), onError func(error)) func() {
	subCtx, cancel := context.WithCancel(ctx)

	var errOnce sync.Once
	fail := func(err error) {
		errOnce.Do(func() {
			c.logger.Warn("remote subscription failed", zap.String("identity", identity), zap.Error(err))
			onError(err)
		})
	}

	go c.run(subCtx, identity, onData, fail)

	var once sync.Once
	return func() {
		once.Do(cancel)
	}
}

func (c *Channel) run(ctx context.Context, identity string, onData func(models.AppData), fail func(error)) {
	// The change stream is opened before the bootstrap read so no update
	// can slip between the two.
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: identity}}}},
	}
	streamOpts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := c.coll.Watch(ctx, pipeline, streamOpts)
	if err != nil {
		fail(fmt.Errorf("failed to open change stream: %w", err))
		return
	}
	defer stream.Close(context.Background())

	data, err := c.bootstrap(ctx, identity)
	if err != nil {
		fail(err)
		return
	}
	onData(data)

	for stream.Next(ctx) {
		var event struct {
			FullDocument document `bson:"fullDocument"`
		}
		if err := stream.Decode(&event); err != nil {
			c.logger.Warn("undecodable change event skipped", zap.Error(err))
			continue
		}
		if event.FullDocument.ID == "" {
			// Invalidate/delete events carry no document.
			continue
		}
		onData(c.migratePayload(event.FullDocument.Payload))
	}

	if err := stream.Err(); err != nil && ctx.Err() == nil {
		fail(fmt.Errorf("change stream terminated: %w", err))
	}
}

func (c *Channel) bootstrap(ctx context.Context, identity string) (models.AppData, error) {
	var doc document
	err := c.coll.FindOne(ctx, bson.D{{Key: "_id", Value: identity}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		initial := models.Initial()
		if err := c.Push(ctx, identity, initial); err != nil {
			return models.AppData{}, fmt.Errorf("first-login bootstrap failed: %w", err)
		}
		c.logger.Info("bootstrapped remote document", zap.String("identity", identity))
		return initial, nil
	}
	if err != nil {
		return models.AppData{}, fmt.Errorf("failed to read remote document: %w", err)
	}
	return c.migratePayload(doc.Payload), nil
}

// migratePayload turns a raw remote payload into an aggregate. A corrupt
// payload yields the initial aggregate rather than an error; migration is
// total.
func (c *Channel) migratePayload(payload string) models.AppData {
	data, err := migrate.Parse([]byte(payload))
	if err != nil {
		c.logger.Warn("remote payload unparsable, substituting initial aggregate", zap.Error(err))
		return models.Initial()
	}
	return data
}

// Push overwrites the remote document for identity with the full serialized
// aggregate, creating it when absent.
func (c *Channel) Push(ctx context.Context, identity string, data models.AppData) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to serialize aggregate: %w", err)
	}

	doc := document{ID: identity, Payload: string(payload), UpdatedAt: time.Now().UTC()}
	opts := options.Replace().SetUpsert(true)
	if _, err := c.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: identity}}, doc, opts); err != nil {
		return fmt.Errorf("failed to push aggregate: %w", err)
	}
	return nil
}
