// Package notifications publishes operational alerts for task and callback
// failures. Delivery channels are optional; a service with no channels is a
// no-op, so callers can always alert without checking configuration.
package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Type classifies a notification.
type Type string

const (
	TypeTaskFailed     Type = "task_failed"
	TypeCallbackFailed Type = "callback_failed"
)

// Notification is a single alert to deliver.
type Notification struct {
	ID        string
	Type      Type
	Title     string
	Message   string
	Data      map[string]interface{}
	CreatedAt time.Time
}

// DeliveryChannel defines the interface for notification delivery
type DeliveryChannel interface {
	Name() string
	Deliver(ctx context.Context, n *Notification) error
}

// Service fans notifications out to its delivery channels.
type Service struct {
	channels []DeliveryChannel
}

// NewService creates a notification service with no channels attached.
func NewService() *Service {
	return &Service{}
}

// AddChannel adds a delivery channel to the service
func (s *Service) AddChannel(ch DeliveryChannel) {
	s.channels = append(s.channels, ch)
}

// NotifyTaskFailed publishes an alert for a task that failed terminally.
// Delivery errors are logged, never returned.
func (s *Service) NotifyTaskFailed(ctx context.Context, taskID, targetURL, message string) {
	s.publish(ctx, &Notification{
		ID:      uuid.New().String(),
		Type:    TypeTaskFailed,
		Title:   "Crawl task failed",
		Message: message,
		Data: map[string]interface{}{
			"task_id":    taskID,
			"target_url": targetURL,
		},
		CreatedAt: time.Now().UTC(),
	})
}

// NotifyCallbackFailed publishes an alert for a result that could not be
// delivered to any callback endpoint.
func (s *Service) NotifyCallbackFailed(ctx context.Context, taskID, message string) {
	s.publish(ctx, &Notification{
		ID:      uuid.New().String(),
		Type:    TypeCallbackFailed,
		Title:   "Callback delivery failed",
		Message: message,
		Data: map[string]interface{}{
			"task_id": taskID,
		},
		CreatedAt: time.Now().UTC(),
	})
}

func (s *Service) publish(ctx context.Context, n *Notification) {
	for _, ch := range s.channels {
		if err := ch.Deliver(ctx, n); err != nil {
			log.Warn().
				Err(err).
				Str("notification_id", n.ID).
				Str("channel", ch.Name()).
				Msg("Failed to deliver notification")
		}
	}
}
