package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/carmandale/AIMS-sub000/internal/models"
	"github.com/carmandale/AIMS-sub000/internal/repositories"
)

// MongoSnapshotRepository implements SnapshotRepository using MongoDB
type MongoSnapshotRepository struct {
	collection *mongo.Collection
}

// NewSnapshotRepository creates a new MongoDB snapshot repository
func NewSnapshotRepository(db *mongo.Database) repositories.SnapshotRepository {
	return &MongoSnapshotRepository{
		collection: db.Collection("portfolio_snapshots"),
	}
}

// Create persists a single snapshot
func (r *MongoSnapshotRepository) Create(ctx context.Context, snapshot *models.Snapshot) error {
	if snapshot.ID.IsZero() {
		snapshot.ID = primitive.NewObjectID()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now()
	}

	_, err := r.collection.InsertOne(ctx, snapshot)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	return nil
}

// GetRange returns a user's snapshots within [start, end] for an interval,
// sorted ascending and normalized to one point per calendar date.
func (r *MongoSnapshotRepository) GetRange(ctx context.Context, userID int64, start, end time.Time, interval string) (models.SnapshotSeries, error) {
	filter := bson.M{
		"user_id":  userID,
		"interval": interval,
		"timestamp": bson.M{
			"$gte": start,
			"$lte": end,
		},
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshots by date range: %w", err)
	}
	defer cursor.Close(ctx)

	var snapshots []models.Snapshot
	if err := cursor.All(ctx, &snapshots); err != nil {
		return nil, fmt.Errorf("failed to decode snapshots: %w", err)
	}

	return models.SnapshotSeries(snapshots).Normalize(), nil
}

// GetLatest retrieves the most recent snapshot for a user
func (r *MongoSnapshotRepository) GetLatest(ctx context.Context, userID int64) (*models.Snapshot, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})

	var snapshot models.Snapshot
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID}, opts).Decode(&snapshot)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	return &snapshot, nil
}

// ActiveUsers lists user IDs with snapshots created since the given time
func (r *MongoSnapshotRepository) ActiveUsers(ctx context.Context, since time.Time) ([]int64, error) {
	filter := bson.M{
		"created_at": bson.M{"$gte": since},
	}

	raw, err := r.collection.Distinct(ctx, "user_id", filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}

	userIDs := make([]int64, 0, len(raw))
	for _, v := range raw {
		switch id := v.(type) {
		case int64:
			userIDs = append(userIDs, id)
		case int32:
			userIDs = append(userIDs, int64(id))
		}
	}

	return userIDs, nil
}

// Count returns the total number of snapshots for a user
func (r *MongoSnapshotRepository) Count(ctx context.Context, userID int64) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}

	return count, nil
}
