package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procure2pay/procure2pay/internal/common"
	"github.com/procure2pay/procure2pay/internal/entity"
)

type stubNotificationRepo struct {
	mu   sync.Mutex
	rows []*entity.Notification
	fail bool
}

func (s *stubNotificationRepo) Insert(_ context.Context, n *entity.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return common.NewAppError(common.ErrDatabase, "insert notification")
	}
	n.ID = int64(len(s.rows) + 1)
	s.rows = append(s.rows, n)
	return nil
}

func (s *stubNotificationRepo) ListForUser(_ context.Context, _ uuid.UUID) ([]*entity.Notification, error) {
	return nil, nil
}

func (s *stubNotificationRepo) MarkRead(_ context.Context, _ int64) error { return nil }

func TestStoreNotifier(t *testing.T) {
	evt := Event{
		Kind:      EventLevelApproved,
		RequestID: uuid.New(),
		Title:     "Laptops",
		CreatedBy: uuid.New(),
		Actor:     uuid.New(),
		Level:     2,
		Message:   "Request \"Laptops\" approved at level 1",
	}

	t.Run("should persist a row addressed to the creator", func(t *testing.T) {
		repo := &stubNotificationRepo{}
		NewStoreNotifier(repo, nil).Notify(context.Background(), evt)

		require.Len(t, repo.rows, 1)
		row := repo.rows[0]
		assert.Equal(t, evt.CreatedBy, row.UserID)
		assert.Equal(t, evt.Message, row.Message)
		require.NotNil(t, row.RequestID)
		assert.Equal(t, evt.RequestID, *row.RequestID)
	})

	t.Run("should swallow insert failures", func(t *testing.T) {
		repo := &stubNotificationRepo{fail: true}
		// Must return normally; the caller's transition already committed.
		NewStoreNotifier(repo, nil).Notify(context.Background(), evt)
		assert.Empty(t, repo.rows)
	})
}

func TestMultiNotifier(t *testing.T) {
	first := &stubNotificationRepo{fail: true}
	second := &stubNotificationRepo{}
	m := MultiNotifier{
		NewStoreNotifier(first, nil),
		NewStoreNotifier(second, nil),
	}

	m.Notify(context.Background(), Event{Kind: EventRejected, RequestID: uuid.New(), CreatedBy: uuid.New()})

	// A failing sink must not stop the fan-out.
	assert.Empty(t, first.rows)
	assert.Len(t, second.rows, 1)
}
