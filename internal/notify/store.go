package notify

import (
	"context"
	"log/slog"

	"github.com/procure2pay/procure2pay/internal/entity"
	"github.com/procure2pay/procure2pay/internal/repository"
)

// StoreNotifier persists an in-app notification for the request's creator.
// Insert failures are logged and swallowed; a lost notification must never
// fail the state transition that produced it.
type StoreNotifier struct {
	repo   repository.NotificationRepository
	logger *slog.Logger
}

func NewStoreNotifier(repo repository.NotificationRepository, logger *slog.Logger) *StoreNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreNotifier{repo: repo, logger: logger}
}

func (n *StoreNotifier) Notify(ctx context.Context, evt Event) {
	requestID := evt.RequestID
	rec := &entity.Notification{
		UserID:    evt.CreatedBy,
		Message:   evt.Message,
		RequestID: &requestID,
	}
	if err := n.repo.Insert(ctx, rec); err != nil {
		n.logger.Error("notify.store_failed",
			"kind", evt.Kind,
			"request_id", evt.RequestID,
			"error", err,
		)
	}
}

// MultiNotifier fans one event out to several sinks in order.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, evt Event) {
	for _, n := range m {
		n.Notify(ctx, evt)
	}
}
