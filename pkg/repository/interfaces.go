package repository

import (
	"context"
	"time"
)

// ActivityWriter persists last-activity timestamps.
type ActivityWriter interface {
	// SaveLastActive upserts one row per user. Implementations must treat the
	// whole call as a unit: on error the caller retries every entry.
	SaveLastActive(ctx context.Context, entries map[string]time.Time) error
}

// ActivityReader loads last-activity timestamps.
type ActivityReader interface {
	// ListActiveSince returns every user whose last activity is at or after since.
	ListActiveSince(ctx context.Context, since time.Time) (map[string]time.Time, error)
}

// ActivityRepository is the durable store behind the presence tracker.
type ActivityRepository interface {
	ActivityWriter
	ActivityReader

	// GetLastActive returns a user's last activity, or nil when none is recorded.
	GetLastActive(ctx context.Context, userID string) (*time.Time, error)

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
