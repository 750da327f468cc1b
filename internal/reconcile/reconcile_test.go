package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procure2pay/procure2pay/internal/common"
	"github.com/procure2pay/procure2pay/internal/entity"
	"github.com/procure2pay/procure2pay/internal/extract"
)

func testOrder() *entity.PurchaseOrder {
	return &entity.PurchaseOrder{
		PONumber:    "PO-20260823-3f0e8d3a",
		Vendor:      "Acme Corp",
		Currency:    "EUR",
		TotalAmount: "1050.00",
		Items: []entity.LineItem{
			{Description: "Laptop", Quantity: 2, UnitPrice: "500.00"},
		},
	}
}

func newTestReconciler() *Reconciler {
	fields := extract.NewFieldsExtractor(nil, common.ExtractConfig{}, nil)
	return NewReconciler(nil, fields, nil)
}

func TestValidateMissingInputs(t *testing.T) {
	r := newTestReconciler()

	t.Run("should report invalid without receipt bytes", func(t *testing.T) {
		outcome := r.Validate(context.Background(), nil, "receipt.pdf", testOrder())
		assert.False(t, outcome.IsValid)
		assert.Equal(t, "Missing receipt or PO metadata.", outcome.Mismatches.Reason)
	})

	t.Run("should report invalid without purchase order metadata", func(t *testing.T) {
		outcome := r.Validate(context.Background(), []byte("anything"), "receipt.pdf", nil)
		assert.False(t, outcome.IsValid)
		assert.Equal(t, "Missing receipt or PO metadata.", outcome.Mismatches.Reason)
	})
}

func TestValidateText(t *testing.T) {
	r := newTestReconciler()

	t.Run("should pass a fully matching receipt", func(t *testing.T) {
		text := "Vendor: Acme Corp\nTotal: 1,050.00\nItem: Laptop Qty: 2 Price: 500.00"
		outcome := r.ValidateText(context.Background(), text, testOrder())

		assert.True(t, outcome.IsValid)
		assert.True(t, outcome.Mismatches.Empty())
		assert.Equal(t, text, outcome.RawExcerpt)
	})

	t.Run("should flag vendor mismatch", func(t *testing.T) {
		text := "Vendor: Initech\nTotal: 1050.00\nItem: Laptop Qty: 2 Price: 500.00"
		outcome := r.ValidateText(context.Background(), text, testOrder())

		assert.False(t, outcome.IsValid)
		require.NotNil(t, outcome.Mismatches.Vendor)
		assert.Equal(t, "Acme Corp", outcome.Mismatches.Vendor.Expected)
		assert.Equal(t, "Initech", outcome.Mismatches.Vendor.Actual)
	})

	t.Run("should compare vendors case-insensitively", func(t *testing.T) {
		text := "Vendor: ACME CORP\nTotal: 1050.00\nItem: Laptop Qty: 2 Price: 500.00"
		outcome := r.ValidateText(context.Background(), text, testOrder())
		assert.Nil(t, outcome.Mismatches.Vendor)
	})

	t.Run("should not flag a vendor the receipt never names", func(t *testing.T) {
		text := "Total: 1050.00\nItem: Laptop Qty: 2 Price: 500.00"
		outcome := r.ValidateText(context.Background(), text, testOrder())
		assert.Nil(t, outcome.Mismatches.Vendor)
	})

	t.Run("should flag amount mismatch with exact decimal strings", func(t *testing.T) {
		text := "Vendor: Acme Corp\nTotal: 1049.99\nItem: Laptop Qty: 2 Price: 500.00"
		outcome := r.ValidateText(context.Background(), text, testOrder())

		assert.False(t, outcome.IsValid)
		require.NotNil(t, outcome.Mismatches.Amount)
		assert.Equal(t, "1050.00", outcome.Mismatches.Amount.Expected)
		assert.Equal(t, "1049.99", outcome.Mismatches.Amount.Actual)
	})

	t.Run("should treat equal decimals with different scales as matching", func(t *testing.T) {
		order := testOrder()
		order.TotalAmount = "1050"
		text := "Vendor: Acme Corp\nTotal: 1,050.00\nItem: Laptop Qty: 2 Price: 500.00"
		outcome := r.ValidateText(context.Background(), text, order)
		assert.Nil(t, outcome.Mismatches.Amount)
	})

	t.Run("should flag missing items when the order has line items", func(t *testing.T) {
		// No digits at all, so the free-form item shapes cannot fire.
		text := "Vendor: Acme Corp\nno further details"
		outcome := r.ValidateText(context.Background(), text, testOrder())

		assert.False(t, outcome.IsValid)
		require.Len(t, outcome.Mismatches.Items, 1)
		assert.Nil(t, outcome.Mismatches.Items[0].Expected)
		assert.Equal(t, "No items found in receipt", outcome.Mismatches.Items[0].Reason)
	})

	t.Run("should flag unmatched order items individually", func(t *testing.T) {
		text := "Vendor: Acme Corp\nTotal: 1050.00\nItem: Keyboard Qty: 1 Price: 50.00"
		outcome := r.ValidateText(context.Background(), text, testOrder())

		assert.False(t, outcome.IsValid)
		require.Len(t, outcome.Mismatches.Items, 1)
		require.NotNil(t, outcome.Mismatches.Items[0].Expected)
		assert.Equal(t, "Laptop", outcome.Mismatches.Items[0].Expected.Description)
		assert.Equal(t, "No matching item in receipt", outcome.Mismatches.Items[0].Reason)
	})

	t.Run("should match items case-insensitively with decimal-equal price", func(t *testing.T) {
		text := "Vendor: Acme Corp\nTotal: 1050.00\nItem: LAPTOP Qty: 2 Price: 500.0"
		outcome := r.ValidateText(context.Background(), text, testOrder())
		assert.Empty(t, outcome.Mismatches.Items)
	})

	t.Run("should skip item checks for an order without items", func(t *testing.T) {
		order := testOrder()
		order.Items = nil
		text := "Vendor: Acme Corp\nTotal: 1050.00"
		outcome := r.ValidateText(context.Background(), text, order)
		assert.True(t, outcome.IsValid)
	})

	t.Run("should bound the stored excerpt", func(t *testing.T) {
		text := "Vendor: Acme Corp\nTotal: 1050.00\nItem: Laptop Qty: 2 Price: 500.00\n"
		for len(text) < 2000 {
			text += "padding line\n"
		}
		outcome := r.ValidateText(context.Background(), text, testOrder())
		assert.Len(t, outcome.RawExcerpt, excerptChars)
	})
}

func TestDiffItems(t *testing.T) {
	t.Run("should require quantity to match exactly", func(t *testing.T) {
		po := []entity.LineItem{{Description: "Laptop", Quantity: 2, UnitPrice: "500.00"}}
		receipt := []entity.LineItem{{Description: "Laptop", Quantity: 3, UnitPrice: "500.00"}}
		assert.Len(t, diffItems(po, receipt), 1)
	})

	t.Run("should drop candidates with unparsable prices", func(t *testing.T) {
		po := []entity.LineItem{{Description: "Laptop", Quantity: 2, UnitPrice: "500.00"}}
		receipt := []entity.LineItem{{Description: "Laptop", Quantity: 2, UnitPrice: "n/a"}}
		assert.Len(t, diffItems(po, receipt), 1)
	})
}
