package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ActionCollection is the collection holding action documents.
const ActionCollection = "Action"

// ConnectDB initializes and returns a MongoDB client and database instance.
func ConnectDB(uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping the primary node
	ctxPing, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(dbName)
	log.Println("Successfully connected to MongoDB.")

	return client, database, nil
}

// DisconnectDB closes the MongoDB client connection.
func DisconnectDB(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %w", err)
	}
	log.Println("MongoDB connection closed.")
	return nil
}

// EnsureActionIndexes creates the indexes required on the action collection.
// The unique (type, tisReferenceInfo) index is what guarantees at most one
// action per action type and source reference.
func EnsureActionIndexes(ctx context.Context, database *mongo.Database) error {
	collection := database.Collection(ActionCollection)

	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "traineeId", Value: 1}},
			Options: options.Index().SetName("traineeIndex"),
		},
		{
			Keys: bson.D{
				{Key: "type", Value: 1},
				{Key: "tisReferenceInfo", Value: 1},
			},
			Options: options.Index().SetName("uniqueActionPerReference").SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create action indexes: %w", err)
	}
	return nil
}
