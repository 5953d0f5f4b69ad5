// mongodb.go - MongoDB connection and indexes

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	analysesCollection      = "analyses"
	templatesCollection     = "complianceTemplates"
	paymentEventsCollection = "paymentEvents"
	receiptsCollection      = "paymentReceipts"

	opTimeout = 5 * time.Second
)

var (
	ErrNotFound       = errors.New("storage: not found")
	ErrForbidden      = errors.New("storage: not owned by caller")
	ErrDuplicateEvent = errors.New("storage: event already processed")
)

var mongoClient *mongo.Client
var mongoDB *mongo.Database

// InitMongoDB initializes MongoDB connection
func InitMongoDB(uri, dbName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	mongoClient = client
	mongoDB = client.Database(dbName)

	slog.Info("connected to MongoDB", "database", dbName)
	return nil
}

// GetMongoDB returns the MongoDB database instance, nil before InitMongoDB
func GetMongoDB() *mongo.Database {
	return mongoDB
}

// PingMongoDB checks the live connection
func PingMongoDB(ctx context.Context) error {
	if mongoClient == nil {
		return errors.New("mongodb not initialized")
	}
	return mongoClient.Ping(ctx, nil)
}

// CloseMongoDB closes MongoDB connection
func CloseMongoDB() {
	if mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(ctx); err != nil {
			slog.Warn("MongoDB disconnect failed", "error", err)
			return
		}
		slog.Info("MongoDB connection closed")
	}
}

// EnsureIndexes creates the secondary indexes the repositories query by
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := db.Collection(analysesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to index %s: %w", analysesCollection, err)
	}

	_, err = db.Collection(receiptsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "receivedAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to index %s: %w", receiptsCollection, err)
	}
	return nil
}
