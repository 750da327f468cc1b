package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildDocumentJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass it to the model as a structured-output constraint and
// also use it locally to validate the response.
func BuildDocumentJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"vendor":       map[string]any{"type": "string", "minLength": 1},
			"currency":     map[string]any{"type": "string", "minLength": 3, "maxLength": 3},
			"total_amount": decimalProp(),
			"items":        itemsProp(),
		},
		"required": []string{"vendor", "total_amount"},
	}
}

// BuildItemsJSONSchema constrains an items-only extraction to a bare array.
func BuildItemsJSONSchema() map[string]any {
	return itemsProp()
}

func itemsProp() map[string]any {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"description": map[string]any{"type": "string", "minLength": 1},
				"quantity":    map[string]any{"type": "integer", "minimum": 1},
				"unit_price":  decimalProp(),
			},
			"required": []string{"description", "quantity", "unit_price"},
		},
	}
}

func decimalProp() map[string]any {
	return map[string]any{
		"type":    "string",
		"pattern": `^\d+(\.\d{1,2})?$`,
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
