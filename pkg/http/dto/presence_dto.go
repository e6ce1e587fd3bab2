package dto

import (
	"time"

	"github.com/jgirmay/presencehub/internal/health"
	"github.com/jgirmay/presencehub/pkg/services/presence"
)

// HeartbeatResponse is returned after a heartbeat is recorded
type HeartbeatResponse struct {
	Status   presence.Status `json:"status"`
	LastSeen *time.Time      `json:"lastSeen"`
}

// BulkStatusRequest asks for the status of several users
type BulkStatusRequest struct {
	UserIDs []string `json:"userIds" validate:"max=1000,dive,required"`
}

// OnlineUsersResponse lists every online or away user
type OnlineUsersResponse struct {
	Users  map[string]presence.Snapshot `json:"users"`
	Count  int                          `json:"count"`
	Online int                          `json:"online"`
	Away   int                          `json:"away"`
}

// NotificationRequest is the request to notify a set of users
type NotificationRequest struct {
	UserIDs []string       `json:"userIds" validate:"required,min=1,max=1000,dive,required"`
	Kind    string         `json:"kind" validate:"required"`
	Title   string         `json:"title" validate:"required"`
	Body    string         `json:"body"`
	Data    map[string]any `json:"data,omitempty"`
}

// NotificationResponse reports how many recipients had an open channel
type NotificationResponse struct {
	Recipients           int `json:"recipients"`
	DeliveredToConnected int `json:"delivered_to_connected"`
}

// HealthResponse is the service health summary
type HealthResponse struct {
	Status       string                          `json:"status"`
	Connections  int                             `json:"connections"`
	Users        int                             `json:"users"`
	PendingFlush int                             `json:"pending_flush"`
	Services     map[string]health.ServiceHealth `json:"services,omitempty"`
	Uptime       string                          `json:"uptime"`
	Timestamp    time.Time                       `json:"timestamp"`
}

// ErrorResponse is a standard error response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
