// Package server exposes the application operations: request intake with
// document understanding, the approval decisions, and receipt submission.
package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/procure2pay/procure2pay/constants"
	"github.com/procure2pay/procure2pay/internal/common"
	"github.com/procure2pay/procure2pay/internal/entity"
	"github.com/procure2pay/procure2pay/internal/extract"
	"github.com/procure2pay/procure2pay/internal/notify"
	"github.com/procure2pay/procure2pay/internal/reconcile"
	"github.com/procure2pay/procure2pay/internal/repository"
	"github.com/procure2pay/procure2pay/internal/workflow"
)

// Upload is a document handed in by the caller.
type Upload struct {
	Filename string
	Content  []byte
}

// ItemInput is one requested line item.
type ItemInput struct {
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// CreateRequestInput carries everything needed to open a purchase request.
// Proforma is optional; when present it is text-extracted and parsed before
// the request is stored.
type CreateRequestInput struct {
	Title       string
	Description string
	Amount      decimal.Decimal
	CreatedBy   uuid.UUID
	Items       []ItemInput
	Proforma    *Upload
}

// Service is the application facade used by transports and CLIs.
type Service struct {
	requests      repository.RequestRepository
	artifacts     repository.ArtifactRepository
	notifications repository.NotificationRepository
	machine       *workflow.Machine
	text          *extract.TextExtractor
	fields        *extract.FieldsExtractor
	reconciler    *reconcile.Reconciler
	notifier      notify.Notifier
	logger        *slog.Logger
}

// ServiceDeps bundles the collaborators; all are required except Notifier,
// which defaults to the log sink.
type ServiceDeps struct {
	Requests      repository.RequestRepository
	Artifacts     repository.ArtifactRepository
	Notifications repository.NotificationRepository
	Machine       *workflow.Machine
	Text          *extract.TextExtractor
	Fields        *extract.FieldsExtractor
	Reconciler    *reconcile.Reconciler
	Notifier      notify.Notifier
}

func NewService(deps ServiceDeps, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return &Service{
		requests:      deps.Requests,
		artifacts:     deps.Artifacts,
		notifications: deps.Notifications,
		machine:       deps.Machine,
		text:          deps.Text,
		fields:        deps.Fields,
		reconciler:    deps.Reconciler,
		notifier:      notifier,
		logger:        logger,
	}
}

// CreateRequest validates the input, runs proforma extraction when a
// document was attached, and stores the request in PENDING at level 1 with
// its full approval chain pre-seeded.
func (s *Service) CreateRequest(ctx context.Context, in CreateRequestInput) (*entity.PurchaseRequest, error) {
	v := common.NewValidator().
		Field("title", in.Title, common.Required).
		Field("amount", in.Amount, common.NonNegativeDecimal)
	for i, it := range in.Items {
		v.Field(fmt.Sprintf("items[%d].description", i), it.Description, common.Required).
			Field(fmt.Sprintf("items[%d].quantity", i), it.Quantity, common.MinInt(1)).
			Field(fmt.Sprintf("items[%d].unit_price", i), it.UnitPrice, common.NonNegativeDecimal)
	}
	if v.HasErrors() {
		return nil, common.WrapError(common.ErrValidation, "invalid request", v.Error())
	}
	if in.CreatedBy == uuid.Nil {
		return nil, common.NewAppError(common.ErrValidation, "created_by is required")
	}

	req := &entity.PurchaseRequest{
		Title:       in.Title,
		Description: in.Description,
		Amount:      in.Amount,
		CreatedBy:   in.CreatedBy,
	}
	for _, it := range in.Items {
		req.Items = append(req.Items, entity.RequestItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}

	if in.Proforma != nil && len(in.Proforma.Content) > 0 {
		text := s.text.Text(ctx, in.Proforma.Content, in.Proforma.Filename)
		md := s.fields.Fields(ctx, text, "proforma")
		req.ProformaMetadata = &md
	}

	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	if in.Proforma != nil && len(in.Proforma.Content) > 0 {
		if err := s.artifacts.Upsert(ctx, req.ID, constants.DocProforma, in.Proforma.Filename, in.Proforma.Content); err != nil {
			// The request exists; a lost proforma blob is recoverable by
			// re-upload and must not fail creation.
			s.logger.Error("server.create.proforma_store_failed", "request_id", req.ID, "error", err)
		}
	}

	s.notifier.Notify(ctx, notify.Event{
		Kind:      notify.EventRequestCreated,
		RequestID: req.ID,
		Title:     req.Title,
		CreatedBy: req.CreatedBy,
		Actor:     req.CreatedBy,
		Level:     req.CurrentApprovalLevel,
		Message:   fmt.Sprintf("Request %q submitted for approval", req.Title),
	})
	return req, nil
}

// Approve records an approval by actor holding actorRole.
func (s *Service) Approve(ctx context.Context, id, actor uuid.UUID, actorRole, comment string) (*entity.PurchaseRequest, error) {
	return s.machine.Approve(ctx, id, actor, actorRole, comment)
}

// Reject finalizes the request as rejected.
func (s *Service) Reject(ctx context.Context, id, actor uuid.UUID, actorRole, reason string) (*entity.PurchaseRequest, error) {
	return s.machine.Reject(ctx, id, actor, actorRole, reason)
}

// SubmitReceipt accepts a receipt for an APPROVED request, reconciles it
// against the purchase order, and persists artifact plus verdict. Each
// resubmission replaces the previous receipt and verdict.
func (s *Service) SubmitReceipt(ctx context.Context, id, actor uuid.UUID, receipt Upload) (entity.ValidationOutcome, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return entity.ValidationOutcome{}, err
	}
	if req.Status != constants.StatusApproved {
		return entity.ValidationOutcome{}, common.NewAppError(common.ErrNotApproved,
			fmt.Sprintf("request %s is %s, receipts require APPROVED", req.ID, req.Status))
	}

	outcome := s.reconciler.Validate(ctx, receipt.Content, receipt.Filename, req.PurchaseOrderMetadata)

	err = s.requests.SaveReceiptValidation(ctx, id, outcome, repository.Blob{
		Filename: receipt.Filename,
		Content:  receipt.Content,
	})
	if err != nil {
		return entity.ValidationOutcome{}, err
	}

	s.notifier.Notify(ctx, notify.Event{
		Kind:      notify.EventReceiptSubmitted,
		RequestID: req.ID,
		Title:     req.Title,
		CreatedBy: req.CreatedBy,
		Actor:     actor,
		Level:     req.CurrentApprovalLevel,
		Message:   receiptMessage(req.Title, outcome),
	})
	return outcome, nil
}

// GetRequest loads the full aggregate.
func (s *Service) GetRequest(ctx context.Context, id uuid.UUID) (*entity.PurchaseRequest, error) {
	return s.requests.GetByID(ctx, id)
}

// ListRequests returns request headers newest-first.
func (s *Service) ListRequests(ctx context.Context) ([]*entity.PurchaseRequest, error) {
	return s.requests.List(ctx)
}

// GetDocument fetches a stored artifact (proforma, purchase order, receipt).
func (s *Service) GetDocument(ctx context.Context, id uuid.UUID, kind constants.DocumentKind) (*repository.Blob, error) {
	return s.artifacts.Get(ctx, id, kind)
}

// ListNotifications returns a user's in-app notifications newest-first.
func (s *Service) ListNotifications(ctx context.Context, userID uuid.UUID) ([]*entity.Notification, error) {
	return s.notifications.ListForUser(ctx, userID)
}

// MarkNotificationRead flags one notification as read.
func (s *Service) MarkNotificationRead(ctx context.Context, id int64) error {
	return s.notifications.MarkRead(ctx, id)
}

func receiptMessage(title string, outcome entity.ValidationOutcome) string {
	if outcome.IsValid {
		return fmt.Sprintf("Receipt for %q matches the purchase order", title)
	}
	return fmt.Sprintf("Receipt for %q has discrepancies", title)
}
