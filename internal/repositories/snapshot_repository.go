package repositories

import (
	"context"
	"time"

	"github.com/carmandale/AIMS-sub000/internal/models"
)

// SnapshotRepository provides access to stored portfolio value snapshots.
// Snapshots are written by the ingestion consumer and read by the analytics
// service; all range reads come back sorted ascending by timestamp.
type SnapshotRepository interface {
	// Create persists a single snapshot.
	Create(ctx context.Context, snapshot *models.Snapshot) error

	// GetRange returns the snapshots for a user within [start, end] at the
	// given sampling interval, normalized to one point per calendar date.
	GetRange(ctx context.Context, userID int64, start, end time.Time, interval string) (models.SnapshotSeries, error)

	// GetLatest returns the most recent snapshot for a user, or nil when the
	// user has none.
	GetLatest(ctx context.Context, userID int64) (*models.Snapshot, error)

	// ActiveUsers lists the user IDs with at least one snapshot created
	// since the given time. Used by the alert sweep.
	ActiveUsers(ctx context.Context, since time.Time) ([]int64, error)

	// Count returns the total number of snapshots for a user.
	Count(ctx context.Context, userID int64) (int64, error)
}
