// Package relay feeds events published on NATS into the local notifier and
// presence tracker, so producers in other services need no HTTP round trip.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/jgirmay/presencehub/pkg/logging"
	"github.com/jgirmay/presencehub/pkg/metrics"
	"github.com/jgirmay/presencehub/pkg/services/realtime"
)

// Publisher delivers envelopes to connected users
type Publisher interface {
	NotifyMany(userIDs []string, kind, title, body string, data any) error
	Publish(userIDs []string, eventType string, data any) error
}

// ActivityMarker records user activity
type ActivityMarker interface {
	MarkActive(userID string)
}

// Config holds relay subjects
type Config struct {
	Subject          string
	HeartbeatSubject string
}

// Message is the payload published on the notify subject. An empty Type
// means a notification.
type Message struct {
	UserIDs []string `json:"userIds"`
	Type    string   `json:"type,omitempty"`
	Kind    string   `json:"kind,omitempty"`
	Title   string   `json:"title,omitempty"`
	Body    string   `json:"body,omitempty"`
	Data    any      `json:"data,omitempty"`
}

// HeartbeatMessage is the payload published on the heartbeat subject
type HeartbeatMessage struct {
	UserID string `json:"userId"`
}

// Relay subscribes every presencehub instance to the same subjects. A user's
// channels and activity live in a single process, so each instance must see
// every message and act on the users it knows about.
type Relay struct {
	nc        *nats.Conn
	cfg       Config
	publisher Publisher
	marker    ActivityMarker
	logger    *logging.Logger
	metrics   *metrics.Metrics
	subs      []*nats.Subscription
}

// Connect dials NATS with unlimited reconnects
func Connect(url string, logger *logging.Logger) (*nats.Conn, error) {
	logger = logging.OrNop(logger).Named("relay")
	nc, err := nats.Connect(url,
		nats.Name("presencehub"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// Ping round-trips to the NATS server
func Ping(ctx context.Context, nc *nats.Conn) error {
	if !nc.IsConnected() {
		return fmt.Errorf("NATS connection is %s", nc.Status())
	}
	return nc.FlushWithContext(ctx)
}

// New creates a relay. marker may be nil to ignore heartbeats.
func New(nc *nats.Conn, cfg Config, publisher Publisher, marker ActivityMarker, logger *logging.Logger, m *metrics.Metrics) *Relay {
	return &Relay{
		nc:        nc,
		cfg:       cfg,
		publisher: publisher,
		marker:    marker,
		logger:    logging.OrNop(logger).Named("relay"),
		metrics:   m,
	}
}

// Start subscribes to the configured subjects
func (r *Relay) Start() error {
	sub, err := r.nc.Subscribe(r.cfg.Subject, r.handleNotify)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.cfg.Subject, err)
	}
	r.subs = append(r.subs, sub)

	if r.marker != nil && r.cfg.HeartbeatSubject != "" {
		sub, err := r.nc.Subscribe(r.cfg.HeartbeatSubject, r.handleHeartbeat)
		if err != nil {
			_ = r.Stop()
			return fmt.Errorf("failed to subscribe to %s: %w", r.cfg.HeartbeatSubject, err)
		}
		r.subs = append(r.subs, sub)
	}

	r.logger.Info("relay subscribed",
		zap.String("subject", r.cfg.Subject),
		zap.String("heartbeat_subject", r.cfg.HeartbeatSubject),
	)
	return nil
}

// Stop drains every subscription
func (r *Relay) Stop() error {
	var firstErr error
	for _, sub := range r.subs {
		if err := sub.Drain(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.subs = nil
	return firstErr
}

func (r *Relay) handleNotify(msg *nats.Msg) {
	var m Message
	if err := json.Unmarshal(msg.Data, &m); err != nil || len(m.UserIDs) == 0 {
		r.metrics.RelayMessage("invalid")
		r.logger.Warn("invalid relay message", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}

	var err error
	if m.Type == "" || m.Type == realtime.TypeNotification {
		err = r.publisher.NotifyMany(m.UserIDs, m.Kind, m.Title, m.Body, m.Data)
	} else {
		err = r.publisher.Publish(m.UserIDs, m.Type, m.Data)
	}
	if err != nil {
		r.metrics.RelayMessage("invalid")
		r.logger.Warn("failed to relay message", zap.String("type", m.Type), zap.Error(err))
		return
	}
	r.metrics.RelayMessage("delivered")
}

func (r *Relay) handleHeartbeat(msg *nats.Msg) {
	var hb HeartbeatMessage
	if err := json.Unmarshal(msg.Data, &hb); err != nil || hb.UserID == "" {
		r.metrics.RelayMessage("invalid")
		return
	}
	r.marker.MarkActive(hb.UserID)
	r.metrics.RelayMessage("heartbeat")
}
