package realtime

import (
	"time"

	json "github.com/goccy/go-json"
)

// Outbound and inbound frame types
const (
	TypeConnected    = "connected"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeSubscribe    = "subscribe"
	TypeSubscribed   = "subscribed"
	TypeHeartbeat    = "heartbeat"
	TypeNotification = "notification"
)

// Envelope is the frame shape for control and generic events
type Envelope struct {
	Type      string     `json:"type"`
	UserID    string     `json:"userID,omitempty"`
	Channel   string     `json:"channel,omitempty"`
	Data      any        `json:"data,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Notification is the frame sent for application notifications
type Notification struct {
	Type      string    `json:"type"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// ConnectedEnvelope acknowledges a new channel
func ConnectedEnvelope(userID string) Envelope {
	return Envelope{Type: TypeConnected, UserID: userID}
}

// PongEnvelope answers a ping frame
func PongEnvelope() Envelope {
	return Envelope{Type: TypePong}
}

// SubscribedEnvelope acknowledges a subscribe frame
func SubscribedEnvelope(channel string) Envelope {
	return Envelope{Type: TypeSubscribed, Channel: channel}
}

// EventEnvelope wraps an arbitrary typed event
func EventEnvelope(eventType string, data any, at time.Time) Envelope {
	return Envelope{Type: eventType, Data: data, Timestamp: &at}
}

// Inbound is the minimal envelope parsed from client frames
type Inbound struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}

// Encode marshals an envelope into a frame
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeInbound parses a client frame
func DecodeInbound(data []byte) (Inbound, error) {
	var in Inbound
	err := json.Unmarshal(data, &in)
	return in, err
}
