package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jgirmay/presencehub/pkg/models"
)

// ActivityRepositoryImpl implements ActivityRepository on top of GORM
type ActivityRepositoryImpl struct {
	db *gorm.DB
}

// NewActivityRepository creates a new GORM-backed activity repository
func NewActivityRepository(db *gorm.DB) *ActivityRepositoryImpl {
	return &ActivityRepositoryImpl{db: db}
}

// Migrate creates or updates the user_activity table
func (r *ActivityRepositoryImpl) Migrate() error {
	if err := r.db.AutoMigrate(&models.UserActivity{}); err != nil {
		return fmt.Errorf("failed to migrate user_activity: %w", err)
	}
	return nil
}

// SaveLastActive upserts the given timestamps in a single statement
func (r *ActivityRepositoryImpl) SaveLastActive(ctx context.Context, entries map[string]time.Time) error {
	if len(entries) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]models.UserActivity, 0, len(entries))
	for userID, ts := range entries {
		lastActive := ts.UTC()
		rows = append(rows, models.UserActivity{
			UserID:       userID,
			LastActiveAt: &lastActive,
			UpdatedAt:    now,
		})
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_active_at", "updated_at"}),
		}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to save last activity for %d users: %w", len(rows), err)
	}
	return nil
}

// ListActiveSince retrieves users active at or after since
func (r *ActivityRepositoryImpl) ListActiveSince(ctx context.Context, since time.Time) (map[string]time.Time, error) {
	var rows []models.UserActivity
	err := r.db.WithContext(ctx).
		Where("last_active_at IS NOT NULL AND last_active_at >= ?", since.UTC()).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent activity: %w", err)
	}

	result := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		if row.LastActiveAt != nil {
			result[row.UserID] = *row.LastActiveAt
		}
	}
	return result, nil
}

// GetLastActive retrieves a single user's last activity
func (r *ActivityRepositoryImpl) GetLastActive(ctx context.Context, userID string) (*time.Time, error) {
	var row models.UserActivity
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last activity: %w", err)
	}
	return row.LastActiveAt, nil
}

// Ping checks the database connection
func (r *ActivityRepositoryImpl) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (r *ActivityRepositoryImpl) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}
