package realtime

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jgirmay/presencehub/pkg/logging"
)

// Sender is the part of the registry the notifier delivers through
type Sender interface {
	SendTo(userID string, msg []byte)
	BroadcastTo(userIDs []string, msg []byte)
}

// Notifier formats notification envelopes and fans them out. It holds no
// delivery state of its own.
type Notifier struct {
	sender Sender
	logger *logging.Logger
	now    func() time.Time
}

// NewNotifier creates a notifier delivering through sender
func NewNotifier(sender Sender, logger *logging.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		logger: logging.OrNop(logger).Named("notifier"),
		now:    time.Now,
	}
}

func (n *Notifier) build(kind, title, body string, data any) ([]byte, error) {
	msg, err := Encode(Notification{
		Type:      TypeNotification,
		Kind:      kind,
		Title:     title,
		Body:      body,
		Data:      data,
		Timestamp: n.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification: %w", err)
	}
	return msg, nil
}

// Notify sends a notification to one user
func (n *Notifier) Notify(userID, kind, title, body string, data any) error {
	msg, err := n.build(kind, title, body, data)
	if err != nil {
		return err
	}
	n.sender.SendTo(userID, msg)
	return nil
}

// NotifyMany sends one notification to every listed user
func (n *Notifier) NotifyMany(userIDs []string, kind, title, body string, data any) error {
	if len(userIDs) == 0 {
		return nil
	}
	msg, err := n.build(kind, title, body, data)
	if err != nil {
		return err
	}
	n.sender.BroadcastTo(userIDs, msg)
	return nil
}

// Publish sends a typed event envelope to every listed user
func (n *Notifier) Publish(userIDs []string, eventType string, data any) error {
	if eventType == "" {
		return fmt.Errorf("event type is required")
	}
	if len(userIDs) == 0 {
		return nil
	}
	msg, err := Encode(EventEnvelope(eventType, data, n.now().UTC()))
	if err != nil {
		n.logger.Warn("failed to encode event", zap.String("type", eventType), zap.Error(err))
		return fmt.Errorf("failed to encode event: %w", err)
	}
	n.sender.BroadcastTo(userIDs, msg)
	return nil
}
