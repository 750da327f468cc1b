// Package workflow implements the sequential approval state machine for
// purchase requests. All transitions run inside a single repository
// transaction against a row-locked snapshot, so concurrent decisions on the
// same request serialize and terminal states are immutable.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/procure2pay/procure2pay/constants"
	"github.com/procure2pay/procure2pay/internal/common"
	"github.com/procure2pay/procure2pay/internal/entity"
	"github.com/procure2pay/procure2pay/internal/notify"
	"github.com/procure2pay/procure2pay/internal/po"
	"github.com/procure2pay/procure2pay/internal/repository"
)

// ExpectedRole returns the role that must sign off at a 1-based level, or ""
// when the level is out of range.
func ExpectedRole(level int) string {
	if level < 1 || level > len(constants.WorkflowRoles) {
		return ""
	}
	return constants.WorkflowRoles[level-1]
}

// Machine drives approval decisions. Approve and Reject are the only writers
// of request status; everything they change commits atomically, including
// the purchase order generated on final approval.
type Machine struct {
	requests  repository.RequestRepository
	generator *po.Generator
	notifier  notify.Notifier
	logger    *slog.Logger
	now       func() time.Time
}

func NewMachine(requests repository.RequestRepository, generator *po.Generator, notifier notify.Notifier, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return &Machine{
		requests:  requests,
		generator: generator,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Approve records an approval at the request's current level. When the actor
// signs off the last required level the request becomes APPROVED and the
// purchase order is generated in the same transaction; otherwise the current
// level advances by one and the request stays PENDING.
//
// The actor's role must match the role required at the current level. The
// check happens against the locked row, so a stale caller cannot approve a
// level that already moved on.
func (m *Machine) Approve(ctx context.Context, id, actor uuid.UUID, actorRole, comment string) (*entity.PurchaseRequest, error) {
	var finalized bool

	req, err := m.requests.Decide(ctx, id, func(req *entity.PurchaseRequest) (*repository.DecisionUpdate, error) {
		if req.IsTerminal() {
			return nil, common.NewAppError(common.ErrTerminalRequest,
				fmt.Sprintf("request %s is %s", req.ID, req.Status))
		}
		level := req.CurrentApprovalLevel
		if want := ExpectedRole(level); actorRole != want {
			return nil, common.NewAppError(common.ErrWrongApprover,
				fmt.Sprintf("level %d requires role %s", level, want))
		}

		now := m.now().UTC()
		upd := &repository.DecisionUpdate{
			Step: entity.ApprovalStep{
				Level:     level,
				Approver:  &actor,
				Decision:  constants.DecisionApproved,
				DecidedAt: &now,
			},
			Status:       constants.StatusPending,
			CurrentLevel: level,
		}
		if comment != "" {
			upd.Step.Metadata = map[string]any{"comment": comment}
		}

		if level >= req.RequiredApprovalLevels {
			order, doc, err := m.generator.Generate(req, now)
			if err != nil {
				return nil, err
			}
			upd.Status = constants.StatusApproved
			upd.ApprovedBy = &actor
			upd.Order = &order
			upd.OrderDoc = doc
			upd.OrderDocName = po.Filename(order)
			finalized = true
		} else {
			upd.CurrentLevel = level + 1
		}
		return upd, nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("workflow.approve",
		"request_id", req.ID,
		"actor", actor,
		"level", req.CurrentApprovalLevel,
		"status", req.Status,
	)

	// Notifications fire after commit; delivery failures never unwind the
	// decision.
	kind := notify.EventLevelApproved
	msg := fmt.Sprintf("Request %q approved at level %d", req.Title, req.CurrentApprovalLevel-1)
	if finalized {
		kind = notify.EventFullyApproved
		msg = fmt.Sprintf("Request %q fully approved; purchase order %s generated",
			req.Title, req.PurchaseOrderMetadata.PONumber)
	}
	m.notifier.Notify(ctx, notify.Event{
		Kind:      kind,
		RequestID: req.ID,
		Title:     req.Title,
		CreatedBy: req.CreatedBy,
		Actor:     actor,
		Level:     req.CurrentApprovalLevel,
		Message:   msg,
	})
	return req, nil
}

// Reject finalizes the request as REJECTED from any pending level. The
// remaining steps stay PENDING; only the current level records the decision.
func (m *Machine) Reject(ctx context.Context, id, actor uuid.UUID, actorRole, reason string) (*entity.PurchaseRequest, error) {
	req, err := m.requests.Decide(ctx, id, func(req *entity.PurchaseRequest) (*repository.DecisionUpdate, error) {
		if req.IsTerminal() {
			return nil, common.NewAppError(common.ErrTerminalRequest,
				fmt.Sprintf("request %s is %s", req.ID, req.Status))
		}
		level := req.CurrentApprovalLevel
		if want := ExpectedRole(level); actorRole != want {
			return nil, common.NewAppError(common.ErrWrongApprover,
				fmt.Sprintf("level %d requires role %s", level, want))
		}

		now := m.now().UTC()
		upd := &repository.DecisionUpdate{
			Step: entity.ApprovalStep{
				Level:     level,
				Approver:  &actor,
				Decision:  constants.DecisionRejected,
				DecidedAt: &now,
			},
			Status:       constants.StatusRejected,
			CurrentLevel: level,
			ApprovedBy:   &actor,
		}
		if reason != "" {
			upd.Step.Metadata = map[string]any{"reason": reason}
		}
		return upd, nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("workflow.reject",
		"request_id", req.ID,
		"actor", actor,
		"level", req.CurrentApprovalLevel,
	)

	msg := fmt.Sprintf("Request %q rejected at level %d", req.Title, req.CurrentApprovalLevel)
	if reason != "" {
		msg += ": " + reason
	}
	m.notifier.Notify(ctx, notify.Event{
		Kind:      notify.EventRejected,
		RequestID: req.ID,
		Title:     req.Title,
		CreatedBy: req.CreatedBy,
		Actor:     actor,
		Level:     req.CurrentApprovalLevel,
		Message:   msg,
	})
	return req, nil
}
