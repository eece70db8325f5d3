// Package changefeed announces local event and status mutations to
// subscribers (NATS subjects, a Telegram chat).
package changefeed

import (
	"context"
	"time"

	"github.com/stagecal/stagecal/internal/logging"
	"github.com/stagecal/stagecal/internal/models"
)

// Publisher delivers one payload on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
	Close() error
}

// Actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// EventChanged is published for local event mutations.
type EventChanged struct {
	Action string        `json:"action"`
	Event  *models.Event `json:"event"`
	At     time.Time     `json:"at"`
}

// StatusChanged is published for status mutations.
type StatusChanged struct {
	Action string         `json:"action"`
	Status *models.Status `json:"status"`
	At     time.Time      `json:"at"`
}

// Feed builds topics under a prefix and publishes best effort: failures
// are logged and never returned to the mutating request.
type Feed struct {
	pub    Publisher
	prefix string
	logger *logging.Logger
	now    func() time.Time
}

// NewFeed wraps pub. A nil pub publishes nothing.
func NewFeed(pub Publisher, prefix string, logger *logging.Logger) *Feed {
	if pub == nil {
		pub = NoopPublisher{}
	}
	if prefix == "" {
		prefix = "stagecal"
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Feed{pub: pub, prefix: prefix, logger: logger, now: time.Now}
}

// Topic returns "<prefix>.<kind>.<action>".
func (f *Feed) Topic(kind, action string) string {
	return f.prefix + "." + kind + "." + action
}

// EventChanged announces a local event mutation.
func (f *Feed) EventChanged(ctx context.Context, action string, ev *models.Event) {
	f.publish(ctx, f.Topic("event", action), &EventChanged{Action: action, Event: ev, At: f.now().UTC()})
}

// StatusChanged announces a status mutation.
func (f *Feed) StatusChanged(ctx context.Context, action string, st *models.Status) {
	f.publish(ctx, f.Topic("status", action), &StatusChanged{Action: action, Status: st, At: f.now().UTC()})
}

func (f *Feed) publish(ctx context.Context, topic string, payload any) {
	if err := f.pub.Publish(ctx, topic, payload); err != nil {
		f.logger.WarnWithContext(ctx, "change feed publish failed", "topic", topic, "error", err)
	}
}

// Close closes the underlying publisher.
func (f *Feed) Close() error {
	return f.pub.Close()
}
