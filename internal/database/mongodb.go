package database

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDB holds the optional audit trail store. Relational data never
// lives here.
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
}

// Collection names
const (
	CollectionAuditEvents = "audit_events"
)

const defaultMongoDBName = "pinetree"

// NewMongoDB connects to uri and pings the primary.
func NewMongoDB(uri string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetAppName("pinetree").
		SetMaxPoolSize(5).
		SetServerSelectionTimeout(5*time.Second).
		SetRetryWrites(true))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := extractDBName(uri)
	log.Printf("✅ [AUDIT] MongoDB database %s ready", dbName)
	return &MongoDB{client: client, database: client.Database(dbName)}, nil
}

// extractDBName takes the path segment of a MongoDB URI.
//
//	mongodb://localhost:27017/pinetree?authSource=admin -> pinetree
func extractDBName(uri string) string {
	rest := uri
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.Index(rest, "?"); i >= 0 {
		rest = rest[:i]
	}
	slash := strings.Index(rest, "/")
	if slash < 0 || slash == len(rest)-1 {
		return defaultMongoDBName
	}
	return rest[slash+1:]
}

// AuditRetention is how long audit events are kept before MongoDB expires them.
const AuditRetention = 180 * 24 * time.Hour

// Initialize creates the audit indexes, including the TTL index.
func (m *MongoDB) Initialize(ctx context.Context) error {
	_, err := m.database.Collection(CollectionAuditEvents).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userName", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "rootGuid", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "createdAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(int32(AuditRetention.Seconds()))},
	})
	if err != nil {
		return fmt.Errorf("failed to create audit indexes: %w", err)
	}
	return nil
}

// Collection returns a handle on the named collection.
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// Close disconnects the client.
func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Ping checks the primary is reachable.
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}
