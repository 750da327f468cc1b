package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procure2pay/procure2pay/constants"
	"github.com/procure2pay/procure2pay/internal/common"
	"github.com/procure2pay/procure2pay/internal/llm"
)

type fakeAI struct {
	fields    llm.DocumentFields
	fieldsErr error
	items     []llm.ItemField
	itemsErr  error
	calls     int
}

func (f *fakeAI) ExtractFields(_ context.Context, _ llm.ExtractRequest) (llm.DocumentFields, []byte, error) {
	f.calls++
	return f.fields, nil, f.fieldsErr
}

func (f *fakeAI) ExtractItems(_ context.Context, _ string) ([]llm.ItemField, error) {
	f.calls++
	return f.items, f.itemsErr
}

const sampleProforma = "Vendor: Acme Corp\nCurrency: EUR\nTotal: $1,050.00\nItem: Laptop Qty: 2 Price: 500.00\n"

func newTestExtractor(ai llm.FieldExtractor) *FieldsExtractor {
	return NewFieldsExtractor(ai, common.ExtractConfig{}, nil)
}

func TestFieldsEmptyText(t *testing.T) {
	md := newTestExtractor(nil).Fields(context.Background(), "", "proforma")

	assert.Equal(t, UnknownVendor, md.Vendor)
	assert.Equal(t, DefaultCurrency, md.Currency)
	assert.Equal(t, "0", md.TotalAmount)
	assert.Empty(t, md.Items)
	assert.Equal(t, constants.ExtractionMethodFailed, md.ExtractionMethod)
	assert.True(t, md.ExtractionError)
	assert.Equal(t, "proforma", md.Source)
}

func TestFieldsRegexFallback(t *testing.T) {
	t.Run("should extract all labeled fields deterministically", func(t *testing.T) {
		e := newTestExtractor(nil)

		first := e.Fields(context.Background(), sampleProforma, "proforma")
		second := e.Fields(context.Background(), sampleProforma, "proforma")

		assert.Equal(t, "Acme Corp", first.Vendor)
		assert.Equal(t, "EUR", first.Currency)
		assert.Equal(t, "1050.00", first.TotalAmount)
		require.Len(t, first.Items, 1)
		assert.Equal(t, "Laptop", first.Items[0].Description)
		assert.Equal(t, 2, first.Items[0].Quantity)
		assert.Equal(t, "500.00", first.Items[0].UnitPrice)
		assert.Equal(t, constants.ExtractionMethodRegex, first.ExtractionMethod)
		assert.False(t, first.ExtractionError)

		// Same text, same record.
		assert.Equal(t, first.Vendor, second.Vendor)
		assert.Equal(t, first.TotalAmount, second.TotalAmount)
		assert.Equal(t, first.Items, second.Items)
	})

	t.Run("should handle long-form labels across multiple items", func(t *testing.T) {
		text := "Vendor: Acme Supplies Inc.\nCurrency: USD\n" +
			"Item: Laptop Qty: 1 Unit Price: 1000.00\n" +
			"Item: Mouse Qty: 2 Unit Price: 25.00\n" +
			"Total Amount: $1050.00"

		md := newTestExtractor(nil).Fields(context.Background(), text, "proforma")

		assert.Equal(t, "Acme Supplies Inc.", md.Vendor)
		assert.Equal(t, "USD", md.Currency)
		assert.Equal(t, "1050.00", md.TotalAmount)
		require.Len(t, md.Items, 2)
		assert.Equal(t, "Laptop", md.Items[0].Description)
		assert.Equal(t, 1, md.Items[0].Quantity)
		assert.Equal(t, "1000.00", md.Items[0].UnitPrice)
		assert.Equal(t, "Mouse", md.Items[1].Description)
		assert.Equal(t, 2, md.Items[1].Quantity)
		assert.Equal(t, "25.00", md.Items[1].UnitPrice)
		assert.False(t, md.ExtractionError)
	})

	t.Run("should degrade to defaults with error flag when nothing matched", func(t *testing.T) {
		md := newTestExtractor(nil).Fields(context.Background(), "lorem ipsum dolor", "proforma")

		assert.Equal(t, UnknownVendor, md.Vendor)
		assert.Equal(t, DefaultCurrency, md.Currency)
		assert.Equal(t, "0", md.TotalAmount)
		assert.Equal(t, constants.ExtractionMethodRegex, md.ExtractionMethod)
		assert.True(t, md.ExtractionError)
	})

	t.Run("should not flag error when only the total matched", func(t *testing.T) {
		md := newTestExtractor(nil).Fields(context.Background(), "Total: 12.00", "proforma")

		assert.Equal(t, UnknownVendor, md.Vendor)
		assert.Equal(t, "12.00", md.TotalAmount)
		assert.False(t, md.ExtractionError)
	})

	t.Run("should keep the raw excerpt bounded", func(t *testing.T) {
		long := sampleProforma
		for len(long) < 2000 {
			long += "filler line with nothing of interest\n"
		}
		md := newTestExtractor(nil).Fields(context.Background(), long, "proforma")
		assert.Len(t, md.RawExcerpt, defaultExcerptChars)
	})
}

func TestFieldsAIPath(t *testing.T) {
	t.Run("should use AI result when the pass succeeds", func(t *testing.T) {
		ai := &fakeAI{fields: llm.DocumentFields{
			Vendor:      "Acme Corp",
			Currency:    "EUR",
			TotalAmount: "1050.00",
			Items:       []llm.ItemField{{Description: "Laptop", Quantity: 2, UnitPrice: "500.00"}},
		}}

		md := newTestExtractor(ai).Fields(context.Background(), sampleProforma, "proforma")

		assert.Equal(t, constants.ExtractionMethodAI, md.ExtractionMethod)
		assert.False(t, md.ExtractionError)
		assert.Equal(t, "Acme Corp", md.Vendor)
		require.Len(t, md.Items, 1)
	})

	t.Run("should fill defaults for fields the AI left blank", func(t *testing.T) {
		ai := &fakeAI{fields: llm.DocumentFields{TotalAmount: "10.00"}}

		md := newTestExtractor(ai).Fields(context.Background(), sampleProforma, "proforma")

		assert.Equal(t, UnknownVendor, md.Vendor)
		assert.Equal(t, DefaultCurrency, md.Currency)
		assert.Equal(t, "10.00", md.TotalAmount)
	})

	t.Run("should fall back to pattern rules when the AI pass fails", func(t *testing.T) {
		ai := &fakeAI{fieldsErr: errors.New("timeout")}

		md := newTestExtractor(ai).Fields(context.Background(), sampleProforma, "proforma")

		assert.Equal(t, constants.ExtractionMethodRegex, md.ExtractionMethod)
		assert.Equal(t, "Acme Corp", md.Vendor)
		assert.Equal(t, "1050.00", md.TotalAmount)
	})
}

func TestItems(t *testing.T) {
	t.Run("should prefer deterministic matches over AI", func(t *testing.T) {
		ai := &fakeAI{items: []llm.ItemField{{Description: "never used", Quantity: 1, UnitPrice: "1.00"}}}
		items := newTestExtractor(ai).Items(context.Background(), "Item: Laptop Qty: 2 Price: 500.00")

		require.NotEmpty(t, items)
		assert.Equal(t, "Laptop", items[0].Description)
		assert.Zero(t, ai.calls)
	})

	t.Run("should ask AI when no pattern matched", func(t *testing.T) {
		ai := &fakeAI{items: []llm.ItemField{{Description: "Laptop", Quantity: 2, UnitPrice: "500.00"}}}
		items := newTestExtractor(ai).Items(context.Background(), "completely unstructured receipt text")

		require.Len(t, items, 1)
		assert.Equal(t, "Laptop", items[0].Description)
		assert.Equal(t, 1, ai.calls)
	})

	t.Run("should return empty when AI also fails", func(t *testing.T) {
		ai := &fakeAI{itemsErr: errors.New("boom")}
		items := newTestExtractor(ai).Items(context.Background(), "completely unstructured receipt text")
		assert.Empty(t, items)
	})

	t.Run("should skip AI entirely without a client", func(t *testing.T) {
		items := newTestExtractor(nil).Items(context.Background(), "no items whatsoever")
		assert.Empty(t, items)
	})
}
