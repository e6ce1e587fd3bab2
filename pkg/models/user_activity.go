package models

import "time"

// UserActivity is the durable record of a user's last observed activity.
// Presence status is never persisted; it is derived from LastActiveAt on read.
type UserActivity struct {
	UserID       string     `json:"user_id" gorm:"type:varchar(255);primaryKey"`
	LastActiveAt *time.Time `json:"last_active_at" gorm:"index"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (UserActivity) TableName() string {
	return "user_activity"
}
