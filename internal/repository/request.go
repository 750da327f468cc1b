package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/procure2pay/procure2pay/constants"
	"github.com/procure2pay/procure2pay/internal/common"
	"github.com/procure2pay/procure2pay/internal/entity"
)

// DecisionUpdate is the state change computed by the workflow for one
// approval decision. Everything in it is persisted in a single transaction
// together with the step mutation.
type DecisionUpdate struct {
	Step         entity.ApprovalStep
	Status       constants.RequestStatus
	CurrentLevel int
	ApprovedBy   *uuid.UUID

	// Set only when the decision finalized the request as approved.
	Order        *entity.PurchaseOrder
	OrderDoc     []byte
	OrderDocName string
}

// DecideFunc computes a decision against a row-locked request snapshot.
// Returning an error aborts the transaction unchanged.
type DecideFunc func(req *entity.PurchaseRequest) (*DecisionUpdate, error)

// RequestRepository persists purchase requests with their items, approval
// steps, and document snapshots.
type RequestRepository interface {
	Create(ctx context.Context, req *entity.PurchaseRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.PurchaseRequest, error)
	List(ctx context.Context) ([]*entity.PurchaseRequest, error)
	Decide(ctx context.Context, id uuid.UUID, fn DecideFunc) (*entity.PurchaseRequest, error)
	SaveReceiptValidation(ctx context.Context, id uuid.UUID, outcome entity.ValidationOutcome, receipt Blob) error
}

// PgRequestRepository is the PostgreSQL implementation of RequestRepository.
type PgRequestRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewPgRequestRepository(db *DB, logger *slog.Logger) *PgRequestRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PgRequestRepository{db: db, logger: logger}
}

const requestColumns = `id, title, description, amount::text, status, created_by, approved_by,
	current_approval_level, required_approval_levels,
	proforma_metadata, purchase_order_metadata, receipt_validation,
	created_at, updated_at`

// Create inserts the request, its items, and one pending approval step per
// required level, all in one transaction. Defaults are applied in place so
// the caller sees the stored state.
func (r *PgRequestRepository) Create(ctx context.Context, req *entity.PurchaseRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.Status == "" {
		req.Status = constants.StatusPending
	}
	if req.CurrentApprovalLevel == 0 {
		req.CurrentApprovalLevel = 1
	}
	if req.RequiredApprovalLevels == 0 {
		req.RequiredApprovalLevels = len(constants.WorkflowRoles)
	}

	proforma, err := marshalNullable(req.ProformaMetadata)
	if err != nil {
		return common.WrapError(common.ErrInternal, "marshal proforma metadata", err)
	}

	err = r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO purchase_requests (
				id, title, description, amount, status, created_by,
				current_approval_level, required_approval_levels, proforma_metadata
			)
			VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9)
			RETURNING created_at, updated_at`,
			req.ID, req.Title, req.Description, req.Amount.String(), string(req.Status),
			req.CreatedBy, req.CurrentApprovalLevel, req.RequiredApprovalLevels, proforma,
		)
		if err := row.Scan(&req.CreatedAt, &req.UpdatedAt); err != nil {
			return fmt.Errorf("insert request: %w", err)
		}

		for i := range req.Items {
			it := &req.Items[i]
			it.RequestID = req.ID
			row := tx.QueryRow(ctx, `
				INSERT INTO request_items (request_id, description, quantity, unit_price)
				VALUES ($1, $2, $3, $4::numeric)
				RETURNING id`,
				req.ID, it.Description, it.Quantity, it.UnitPrice.String(),
			)
			if err := row.Scan(&it.ID); err != nil {
				return fmt.Errorf("insert item %d: %w", i, err)
			}
		}

		// Pre-seed one step per level so every decision is an update of a
		// known row, never a racy insert.
		req.Approvals = req.Approvals[:0]
		for level := 1; level <= req.RequiredApprovalLevels; level++ {
			step := entity.ApprovalStep{
				RequestID: req.ID,
				Level:     level,
				Decision:  constants.DecisionPending,
			}
			row := tx.QueryRow(ctx, `
				INSERT INTO approval_steps (request_id, level, decision)
				VALUES ($1, $2, $3)
				RETURNING id`,
				req.ID, level, string(step.Decision),
			)
			if err := row.Scan(&step.ID); err != nil {
				return fmt.Errorf("insert step level %d: %w", level, err)
			}
			req.Approvals = append(req.Approvals, step)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("repository.request.create_failed", "request_id", req.ID, "error", err)
		return common.WrapError(common.ErrDatabase, "create purchase request", err)
	}

	r.logger.Info("repository.request.created",
		"request_id", req.ID,
		"items", len(req.Items),
		"levels", req.RequiredApprovalLevels,
	)
	return nil
}

// GetByID loads the full aggregate: request row, items, approval steps.
func (r *PgRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.PurchaseRequest, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM purchase_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.WrapError(common.ErrNotFound, "purchase request not found", err)
		}
		return nil, common.WrapError(common.ErrDatabase, "get purchase request", err)
	}

	if err := r.loadItems(ctx, req); err != nil {
		return nil, common.WrapError(common.ErrDatabase, "load request items", err)
	}
	if err := r.loadSteps(ctx, req); err != nil {
		return nil, common.WrapError(common.ErrDatabase, "load approval steps", err)
	}
	return req, nil
}

// List returns request headers newest-first, without items or steps.
func (r *PgRequestRepository) List(ctx context.Context) ([]*entity.PurchaseRequest, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+requestColumns+` FROM purchase_requests ORDER BY created_at DESC`)
	if err != nil {
		return nil, common.WrapError(common.ErrDatabase, "list purchase requests", err)
	}
	defer rows.Close()

	var reqs []*entity.PurchaseRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, common.WrapError(common.ErrDatabase, "scan purchase request", err)
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, common.WrapError(common.ErrDatabase, "list purchase requests", err)
	}
	return reqs, nil
}

// Decide runs one approval decision atomically. The request row is locked
// with SELECT ... FOR UPDATE for the duration, so concurrent decisions on
// the same request serialize and each fn sees the previous outcome.
func (r *PgRequestRepository) Decide(ctx context.Context, id uuid.UUID, fn DecideFunc) (*entity.PurchaseRequest, error) {
	var result *entity.PurchaseRequest

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+requestColumns+` FROM purchase_requests WHERE id = $1 FOR UPDATE`, id)
		req, err := scanRequest(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.WrapError(common.ErrNotFound, "purchase request not found", err)
			}
			return fmt.Errorf("lock request: %w", err)
		}
		if err := r.loadItemsTx(ctx, tx, req); err != nil {
			return fmt.Errorf("load items: %w", err)
		}
		if err := r.loadStepsTx(ctx, tx, req); err != nil {
			return fmt.Errorf("load steps: %w", err)
		}

		upd, err := fn(req)
		if err != nil {
			return err
		}

		stepMeta, err := marshalNullable(upd.Step.Metadata)
		if err != nil {
			return fmt.Errorf("marshal step metadata: %w", err)
		}
		tag, err := tx.Exec(ctx, `
			UPDATE approval_steps
			SET approver = $3, decision = $4, decided_at = $5, metadata = $6
			WHERE request_id = $1 AND level = $2`,
			id, upd.Step.Level, upd.Step.Approver, string(upd.Step.Decision),
			upd.Step.DecidedAt, stepMeta,
		)
		if err != nil {
			return fmt.Errorf("update step: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("approval step level %d missing for request %s", upd.Step.Level, id)
		}

		var orderJSON []byte
		if upd.Order != nil {
			orderJSON, err = json.Marshal(upd.Order)
			if err != nil {
				return fmt.Errorf("marshal purchase order: %w", err)
			}
		}
		_, err = tx.Exec(ctx, `
			UPDATE purchase_requests
			SET status = $2,
			    current_approval_level = $3,
			    approved_by = $4,
			    purchase_order_metadata = COALESCE($5, purchase_order_metadata),
			    updated_at = now()
			WHERE id = $1`,
			id, string(upd.Status), upd.CurrentLevel, upd.ApprovedBy, orderJSON,
		)
		if err != nil {
			return fmt.Errorf("update request: %w", err)
		}

		if upd.Order != nil && upd.OrderDoc != nil {
			if err := upsertArtifact(ctx, tx, id, constants.DocPurchaseOrder, upd.OrderDocName, upd.OrderDoc); err != nil {
				return fmt.Errorf("store purchase order document: %w", err)
			}
		}

		// Reflect the committed state back without a second round trip.
		req.Status = upd.Status
		req.CurrentApprovalLevel = upd.CurrentLevel
		req.ApprovedBy = upd.ApprovedBy
		if upd.Order != nil {
			req.PurchaseOrderMetadata = upd.Order
		}
		for i := range req.Approvals {
			if req.Approvals[i].Level == upd.Step.Level {
				step := upd.Step
				step.ID = req.Approvals[i].ID
				step.RequestID = id
				req.Approvals[i] = step
			}
		}
		result = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SaveReceiptValidation stores the receipt artifact, the request's
// validation snapshot, and the 1:1 result row in one transaction. Each
// resubmission replaces all three.
func (r *PgRequestRepository) SaveReceiptValidation(ctx context.Context, id uuid.UUID, outcome entity.ValidationOutcome, receipt Blob) error {
	outcomeJSON, err := json.Marshal(outcome)
	if err != nil {
		return common.WrapError(common.ErrInternal, "marshal validation outcome", err)
	}
	mismatchJSON, err := json.Marshal(outcome.Mismatches)
	if err != nil {
		return common.WrapError(common.ErrInternal, "marshal mismatches", err)
	}

	err = r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE purchase_requests
			SET receipt_validation = $2, updated_at = now()
			WHERE id = $1`,
			id, outcomeJSON,
		)
		if err != nil {
			return fmt.Errorf("update validation snapshot: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return common.NewAppError(common.ErrNotFound, "purchase request not found")
		}

		if len(receipt.Content) > 0 {
			if err := upsertArtifact(ctx, tx, id, constants.DocReceipt, receipt.Filename, receipt.Content); err != nil {
				return fmt.Errorf("store receipt document: %w", err)
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO receipt_validation_results (request_id, is_valid, mismatches, validated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (request_id)
			DO UPDATE SET is_valid = EXCLUDED.is_valid,
			              mismatches = EXCLUDED.mismatches,
			              validated_at = EXCLUDED.validated_at`,
			id, outcome.IsValid, mismatchJSON,
		)
		if err != nil {
			return fmt.Errorf("upsert validation result: %w", err)
		}
		return nil
	})
	if err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return common.WrapError(common.ErrDatabase, "save receipt validation", err)
	}

	r.logger.Info("repository.request.receipt_validation_saved",
		"request_id", id,
		"is_valid", outcome.IsValid,
	)
	return nil
}

func (r *PgRequestRepository) loadItems(ctx context.Context, req *entity.PurchaseRequest) error {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, request_id, description, quantity, unit_price::text
		FROM request_items WHERE request_id = $1 ORDER BY id`, req.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	return scanItems(rows, req)
}

func (r *PgRequestRepository) loadItemsTx(ctx context.Context, tx pgx.Tx, req *entity.PurchaseRequest) error {
	rows, err := tx.Query(ctx, `
		SELECT id, request_id, description, quantity, unit_price::text
		FROM request_items WHERE request_id = $1 ORDER BY id`, req.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	return scanItems(rows, req)
}

func (r *PgRequestRepository) loadSteps(ctx context.Context, req *entity.PurchaseRequest) error {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, request_id, level, approver, decision, decided_at, metadata
		FROM approval_steps WHERE request_id = $1 ORDER BY level`, req.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	return scanSteps(rows, req)
}

func (r *PgRequestRepository) loadStepsTx(ctx context.Context, tx pgx.Tx, req *entity.PurchaseRequest) error {
	rows, err := tx.Query(ctx, `
		SELECT id, request_id, level, approver, decision, decided_at, metadata
		FROM approval_steps WHERE request_id = $1 ORDER BY level`, req.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	return scanSteps(rows, req)
}

func scanItems(rows pgx.Rows, req *entity.PurchaseRequest) error {
	req.Items = req.Items[:0]
	for rows.Next() {
		var it entity.RequestItem
		var price string
		if err := rows.Scan(&it.ID, &it.RequestID, &it.Description, &it.Quantity, &price); err != nil {
			return err
		}
		d, err := decimal.NewFromString(price)
		if err != nil {
			return fmt.Errorf("parse unit_price %q: %w", price, err)
		}
		it.UnitPrice = d
		req.Items = append(req.Items, it)
	}
	return rows.Err()
}

func scanSteps(rows pgx.Rows, req *entity.PurchaseRequest) error {
	req.Approvals = req.Approvals[:0]
	for rows.Next() {
		var step entity.ApprovalStep
		var decision string
		var meta []byte
		if err := rows.Scan(&step.ID, &step.RequestID, &step.Level, &step.Approver, &decision, &step.DecidedAt, &meta); err != nil {
			return err
		}
		step.Decision = constants.Decision(decision)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &step.Metadata); err != nil {
				return fmt.Errorf("parse step metadata: %w", err)
			}
		}
		req.Approvals = append(req.Approvals, step)
	}
	return rows.Err()
}

// scanRequest maps one requestColumns row into the aggregate header.
func scanRequest(row pgx.Row) (*entity.PurchaseRequest, error) {
	var req entity.PurchaseRequest
	var amount, status string
	var proforma, order, validation []byte

	err := row.Scan(
		&req.ID, &req.Title, &req.Description, &amount, &status,
		&req.CreatedBy, &req.ApprovedBy,
		&req.CurrentApprovalLevel, &req.RequiredApprovalLevels,
		&proforma, &order, &validation,
		&req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	req.Status = constants.RequestStatus(status)

	if len(proforma) > 0 {
		req.ProformaMetadata = &entity.DocumentMetadata{}
		if err := json.Unmarshal(proforma, req.ProformaMetadata); err != nil {
			return nil, fmt.Errorf("parse proforma metadata: %w", err)
		}
	}
	if len(order) > 0 {
		req.PurchaseOrderMetadata = &entity.PurchaseOrder{}
		if err := json.Unmarshal(order, req.PurchaseOrderMetadata); err != nil {
			return nil, fmt.Errorf("parse purchase order metadata: %w", err)
		}
	}
	if len(validation) > 0 {
		req.ReceiptValidation = &entity.ValidationOutcome{}
		if err := json.Unmarshal(validation, req.ReceiptValidation); err != nil {
			return nil, fmt.Errorf("parse receipt validation: %w", err)
		}
	}
	return &req, nil
}

// marshalNullable returns nil (SQL NULL) for nil-ish values instead of the
// JSON literal "null".
func marshalNullable(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *entity.DocumentMetadata:
		if t == nil {
			return nil, nil
		}
	case map[string]any:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
