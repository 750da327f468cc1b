package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFence(t *testing.T) {
	t.Run("should strip json fence", func(t *testing.T) {
		assert.Equal(t, `{"a":1}`, StripCodeFence("```json\n{\"a\":1}\n```"))
	})

	t.Run("should strip bare fence", func(t *testing.T) {
		assert.Equal(t, `{"a":1}`, StripCodeFence("```\n{\"a\":1}\n```"))
	})

	t.Run("should leave unfenced content alone", func(t *testing.T) {
		assert.Equal(t, `{"a":1}`, StripCodeFence(`{"a":1}`))
	})
}

func TestNormalizeAndSanitizeJSON(t *testing.T) {
	decode := func(t *testing.T, raw []byte) map[string]any {
		t.Helper()
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		return m
	}

	t.Run("should coerce numeric total to string", func(t *testing.T) {
		out, dropped, err := NormalizeAndSanitizeJSON([]byte(`{"vendor":"Acme","total_amount":1050.5}`), nil)
		require.NoError(t, err)
		assert.Empty(t, dropped)
		assert.Equal(t, "1050.50", decode(t, out)["total_amount"])
	})

	t.Run("should strip symbols and separators from string total", func(t *testing.T) {
		out, _, err := NormalizeAndSanitizeJSON([]byte(`{"total_amount":"$1,050.00"}`), nil)
		require.NoError(t, err)
		assert.Equal(t, "1050.00", decode(t, out)["total_amount"])
	})

	t.Run("should drop unusable total", func(t *testing.T) {
		out, dropped, err := NormalizeAndSanitizeJSON([]byte(`{"total_amount":"n/a"}`), nil)
		require.NoError(t, err)
		assert.Contains(t, dropped, "total_amount")
		_, ok := decode(t, out)["total_amount"]
		assert.False(t, ok)
	})

	t.Run("should uppercase currency and drop malformed codes", func(t *testing.T) {
		out, _, err := NormalizeAndSanitizeJSON([]byte(`{"currency":"eur"}`), nil)
		require.NoError(t, err)
		assert.Equal(t, "EUR", decode(t, out)["currency"])

		out, dropped, err := NormalizeAndSanitizeJSON([]byte(`{"currency":"euros"}`), nil)
		require.NoError(t, err)
		assert.Contains(t, dropped, "currency")
		_, ok := decode(t, out)["currency"]
		assert.False(t, ok)
	})

	t.Run("should drop unknown keys", func(t *testing.T) {
		out, dropped, err := NormalizeAndSanitizeJSON([]byte(`{"vendor":"Acme","confidence":0.9}`), nil)
		require.NoError(t, err)
		assert.Contains(t, dropped, "confidence(unknown)")
		_, ok := decode(t, out)["confidence"]
		assert.False(t, ok)
	})

	t.Run("should sanitize items and drop broken entries", func(t *testing.T) {
		raw := []byte(`{"items":[
			{"description":"Laptop","quantity":2,"unit_price":"500.00"},
			{"description":"","quantity":1,"unit_price":"1.00"},
			{"description":"Mouse","quantity":"not a number","unit_price":"25.00"},
			{"description":"Pad","quantity":3,"unit_price":12.5}
		]}`)
		out, dropped, err := NormalizeAndSanitizeJSON(raw, nil)
		require.NoError(t, err)
		assert.Contains(t, dropped, "items[1]")
		assert.Contains(t, dropped, "items[2]")

		items := decode(t, out)["items"].([]any)
		require.Len(t, items, 2)
		first := items[0].(map[string]any)
		assert.Equal(t, "Laptop", first["description"])
		assert.Equal(t, "500.00", first["unit_price"])
		last := items[1].(map[string]any)
		assert.Equal(t, "12.50", last["unit_price"])
	})

	t.Run("should fail on non-JSON input", func(t *testing.T) {
		_, _, err := NormalizeAndSanitizeJSON([]byte("not json"), nil)
		assert.Error(t, err)
	})
}

func TestSanitizeItemsJSON(t *testing.T) {
	t.Run("should normalize an items array", func(t *testing.T) {
		out, err := SanitizeItemsJSON([]byte(`[{"description":"Laptop","quantity":2,"unit_price":500}]`))
		require.NoError(t, err)

		var items []ItemField
		require.NoError(t, json.Unmarshal(out, &items))
		require.Len(t, items, 1)
		assert.Equal(t, "Laptop", items[0].Description)
		assert.Equal(t, 2, items[0].Quantity)
		assert.Equal(t, "500.00", items[0].UnitPrice)
	})

	t.Run("should yield empty array for non-array payload", func(t *testing.T) {
		out, err := SanitizeItemsJSON([]byte(`{"items":[]}`))
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(out))
	})
}

func TestValidateJSONAgainstSchema(t *testing.T) {
	schema := BuildDocumentJSONSchema()

	t.Run("should accept a complete record", func(t *testing.T) {
		doc := []byte(`{"vendor":"Acme","currency":"EUR","total_amount":"1050.00","items":[{"description":"Laptop","quantity":2,"unit_price":"500.00"}]}`)
		assert.NoError(t, ValidateJSONAgainstSchema(schema, doc))
	})

	t.Run("should reject a missing required field", func(t *testing.T) {
		doc := []byte(`{"vendor":"Acme"}`)
		assert.Error(t, ValidateJSONAgainstSchema(schema, doc))
	})

	t.Run("should reject a malformed amount", func(t *testing.T) {
		doc := []byte(`{"vendor":"Acme","total_amount":"12.345"}`)
		assert.Error(t, ValidateJSONAgainstSchema(schema, doc))
	})
}
