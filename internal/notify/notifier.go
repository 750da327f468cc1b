// Package notify defines the outbound notification hook. The workflow core
// only guarantees that Notify fires after the triggering state change
// commits, with payloads that are safe to retry or duplicate-deliver;
// delivery mechanics (email, websocket, push) live outside this module.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// EventKind identifies the state change behind a notification.
type EventKind string

const (
	EventRequestCreated   EventKind = "request.created"
	EventLevelApproved    EventKind = "level.approved"
	EventFullyApproved    EventKind = "fully.approved"
	EventRejected         EventKind = "rejected"
	EventReceiptSubmitted EventKind = "receipt.submitted"
)

// Event is an idempotent-safe notification payload.
type Event struct {
	Kind      EventKind
	RequestID uuid.UUID
	Title     string
	CreatedBy uuid.UUID
	Actor     uuid.UUID
	Level     int
	Message   string
}

// Notifier delivers events best-effort. Implementations log their own
// failures; a failed delivery never affects the caller's state transition,
// which is why Notify has no error return.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

// LogNotifier records events to the structured log. It is the default sink
// and the base for composed notifiers.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, evt Event) {
	n.logger.Info("notify.event",
		"kind", evt.Kind,
		"request_id", evt.RequestID,
		"title", evt.Title,
		"actor", evt.Actor,
		"level", evt.Level,
		"message", evt.Message,
	)
}
