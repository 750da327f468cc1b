package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/procure2pay/procure2pay/constants"
)

// PurchaseRequest is the aggregate root of the approval workflow. It owns its
// items, approval steps, and validation result; the three metadata fields are
// embedded JSON snapshots, not separate entities.
type PurchaseRequest struct {
	ID                     uuid.UUID
	Title                  string
	Description            string
	Amount                 decimal.Decimal
	Status                 constants.RequestStatus
	CreatedBy              uuid.UUID
	ApprovedBy             *uuid.UUID // last actor on a terminal decision
	CurrentApprovalLevel   int        // 1-based, monotonically non-decreasing
	RequiredApprovalLevels int        // fixed at creation
	ProformaMetadata       *DocumentMetadata
	PurchaseOrderMetadata  *PurchaseOrder
	ReceiptValidation      *ValidationOutcome
	CreatedAt              time.Time
	UpdatedAt              time.Time

	Items     []RequestItem
	Approvals []ApprovalStep
}

// IsTerminal reports whether the request reached APPROVED or REJECTED.
func (r *PurchaseRequest) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// NextRequiredRole returns the role expected to act at the current level,
// or "" once the chain is exhausted. Pure function of request state.
func (r *PurchaseRequest) NextRequiredRole() string {
	idx := r.CurrentApprovalLevel - 1
	if idx < 0 || idx >= len(constants.WorkflowRoles) {
		return ""
	}
	return constants.WorkflowRoles[idx]
}

// RequestItem is a line item owned 1:N by a PurchaseRequest.
type RequestItem struct {
	ID          int64
	RequestID   uuid.UUID
	Description string
	Quantity    int // >= 1
	UnitPrice   decimal.Decimal
}

// TotalPrice is quantity x unit price.
func (i RequestItem) TotalPrice() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ApprovalStep records the decision taken at one level of the chain.
// Unique per (request, level); mutated exactly once, when its level
// becomes current.
type ApprovalStep struct {
	ID        int64
	RequestID uuid.UUID
	Level     int // 1-based
	Approver  *uuid.UUID
	Decision  constants.Decision
	DecidedAt *time.Time
	Metadata  map[string]any // free-form: comment, reason, ...
}

// ReceiptValidationResult is the persisted 1:1 reconciliation verdict.
// Replaced on every receipt resubmission.
type ReceiptValidationResult struct {
	RequestID   uuid.UUID
	IsValid     bool
	Mismatches  MismatchSet
	ValidatedAt time.Time
}

// Notification is an in-app notification record produced by the outbound
// notify hook.
type Notification struct {
	ID        int64
	UserID    uuid.UUID
	Message   string
	RequestID *uuid.UUID
	IsRead    bool
	CreatedAt time.Time
}
