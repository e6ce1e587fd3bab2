// Package presence tracks user activity and derives online/away/offline
// status from elapsed time since the last activity.
package presence

import "time"

// Status is the coarse presence state of a user
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusOffline Status = "offline"
)

const (
	// OnlineWindow is how long after the last activity a user counts as online.
	OnlineWindow = 5 * time.Minute

	// AwayWindow is how long after the last activity a user counts as away.
	AwayWindow = 30 * time.Minute
)

// DeriveStatus maps the last activity t onto a Status at time now.
// A zero t means no activity is known.
func DeriveStatus(now, t time.Time) Status {
	if t.IsZero() {
		return StatusOffline
	}
	elapsed := now.Sub(t)
	switch {
	case elapsed < OnlineWindow:
		return StatusOnline
	case elapsed < AwayWindow:
		return StatusAway
	default:
		return StatusOffline
	}
}

// Snapshot is a point-in-time view of one user's presence
type Snapshot struct {
	UserID   string     `json:"userId"`
	Status   Status     `json:"status"`
	LastSeen *time.Time `json:"lastSeen"`
}

func newSnapshot(userID string, now, lastSeen time.Time) Snapshot {
	s := Snapshot{UserID: userID, Status: DeriveStatus(now, lastSeen)}
	if !lastSeen.IsZero() {
		ls := lastSeen
		s.LastSeen = &ls
	}
	return s
}

// IsVisible reports whether the snapshot belongs in an online listing.
func (s Snapshot) IsVisible() bool {
	return s.Status == StatusOnline || s.Status == StatusAway
}
