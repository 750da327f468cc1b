// Package reconcile compares a submitted receipt against the purchase
// order's recorded expectations and reports itemized discrepancies.
package reconcile

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/procure2pay/procure2pay/internal/entity"
	"github.com/procure2pay/procure2pay/internal/extract"
)

const excerptChars = 500

// Reconciler re-runs extraction on a receipt document and diffs the result
// against the purchase-order metadata snapshot.
type Reconciler struct {
	text   *extract.TextExtractor
	fields *extract.FieldsExtractor
	logger *slog.Logger
}

func NewReconciler(text *extract.TextExtractor, fields *extract.FieldsExtractor, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{text: text, fields: fields, logger: logger}
}

// Validate produces the reconciliation verdict. A missing receipt or PO
// snapshot is not an error: the outcome is invalid with an explanatory
// reason and no extraction is attempted.
func (r *Reconciler) Validate(ctx context.Context, receipt []byte, filename string, order *entity.PurchaseOrder) entity.ValidationOutcome {
	if len(receipt) == 0 || order == nil {
		return entity.ValidationOutcome{
			IsValid:    false,
			Mismatches: entity.MismatchSet{Reason: "Missing receipt or PO metadata."},
		}
	}

	text := r.text.Text(ctx, receipt, filename)
	return r.ValidateText(ctx, text, order)
}

// ValidateText diffs already-extracted receipt text against the order.
func (r *Reconciler) ValidateText(ctx context.Context, text string, order *entity.PurchaseOrder) entity.ValidationOutcome {
	var mismatches entity.MismatchSet

	// Vendor: only a found label counts; absence is not a mismatch.
	if vendor, ok := extract.FindVendorLine(text); ok {
		if !strings.EqualFold(strings.TrimSpace(vendor), strings.TrimSpace(order.Vendor)) {
			mismatches.Vendor = &entity.FieldMismatch{
				Expected: order.Vendor,
				Actual:   vendor,
			}
		}
	}

	// Amount: compared as exact decimals, never floats.
	if total, ok := extract.FindTotalAmount(text); ok {
		expected, err := decimal.NewFromString(order.TotalAmount)
		if err != nil {
			expected = decimal.Zero
		}
		if !total.Equal(expected) {
			mismatches.Amount = &entity.FieldMismatch{
				Expected: order.TotalAmount,
				Actual:   extract.DecimalString(total),
			}
		}
	}

	if len(order.Items) > 0 {
		receiptItems := r.fields.Items(ctx, text)
		if len(receiptItems) == 0 {
			mismatches.Items = []entity.ItemMismatch{{Reason: "No items found in receipt"}}
		} else {
			mismatches.Items = diffItems(order.Items, receiptItems)
		}
	}

	outcome := entity.ValidationOutcome{
		IsValid:    mismatches.Empty(),
		Mismatches: mismatches,
		RawExcerpt: clip(text, excerptChars),
	}

	r.logger.Info("reconcile.validate",
		"po_number", order.PONumber,
		"is_valid", outcome.IsValid,
		"vendor_mismatch", mismatches.Vendor != nil,
		"amount_mismatch", mismatches.Amount != nil,
		"item_mismatches", len(mismatches.Items),
	)
	return outcome
}

// diffItems requires every PO item to find an exact match among receipt
// items: case-insensitive trimmed description, equal quantity, and
// decimal-equal unit price.
func diffItems(poItems, receiptItems []entity.LineItem) []entity.ItemMismatch {
	var mismatches []entity.ItemMismatch
	for i := range poItems {
		poItem := poItems[i]
		if !hasMatchingItem(poItem, receiptItems) {
			expected := poItem
			mismatches = append(mismatches, entity.ItemMismatch{
				Expected: &expected,
				Reason:   "No matching item in receipt",
			})
		}
	}
	return mismatches
}

func hasMatchingItem(want entity.LineItem, candidates []entity.LineItem) bool {
	wantPrice, err := decimal.NewFromString(want.UnitPrice)
	if err != nil {
		return false
	}
	wantDesc := strings.ToLower(strings.TrimSpace(want.Description))
	for _, c := range candidates {
		if strings.ToLower(strings.TrimSpace(c.Description)) != wantDesc {
			continue
		}
		if c.Quantity != want.Quantity {
			continue
		}
		price, err := decimal.NewFromString(c.UnitPrice)
		if err != nil {
			continue
		}
		if price.Equal(wantPrice) {
			return true
		}
	}
	return false
}

func clip(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
