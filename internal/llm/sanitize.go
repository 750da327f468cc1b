package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// StripCodeFence removes a wrapping ```json ... ``` (or bare ```) fence that
// chat models sometimes add despite being asked for raw JSON.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// NormalizeAndSanitizeJSON
// - Coerces numeric -> string for money fields (total_amount, unit_price)
// - Coerces float quantities to ints
// - Drops null/empty optionals and unknown keys (strict additionalProperties friendliness)
func NormalizeAndSanitizeJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	dropped := make([]string, 0, 4)

	if v, ok := m["total_amount"]; ok {
		if s, _ := coerceDecimalString(v); s != "" {
			m["total_amount"] = s
		} else {
			delete(m, "total_amount")
			dropped = append(dropped, "total_amount")
		}
	}

	if v, ok := m["currency"].(string); ok {
		cur := strings.ToUpper(strings.TrimSpace(v))
		if len(cur) == 3 {
			m["currency"] = cur
		} else {
			delete(m, "currency")
			dropped = append(dropped, "currency")
		}
	}

	if v, ok := m["vendor"].(string); ok {
		s := strings.TrimSpace(v)
		if s == "" {
			delete(m, "vendor")
			dropped = append(dropped, "vendor")
		} else {
			m["vendor"] = s
		}
	}

	if v, ok := m["items"]; ok {
		items, itemDropped := sanitizeItems(v)
		m["items"] = items
		dropped = append(dropped, itemDropped...)
	}

	allowed := map[string]struct{}{
		"vendor": {}, "currency": {}, "total_amount": {}, "items": {},
	}
	for k := range m {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "dropped", dropped)
	}
	return out, dropped, nil
}

// SanitizeItemsJSON normalizes an items-only response into a clean array.
func SanitizeItemsJSON(raw []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("sanitize items: decode: %w", err)
	}
	items, _ := sanitizeItems(v)
	return json.Marshal(items)
}

func sanitizeItems(v any) ([]any, []string) {
	arr, ok := v.([]any)
	if !ok {
		return []any{}, []string{"items(type)"}
	}
	var dropped []string
	out := make([]any, 0, len(arr))
	for i, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok {
			dropped = append(dropped, fmt.Sprintf("items[%d](type)", i))
			continue
		}
		desc, _ := obj["description"].(string)
		desc = strings.TrimSpace(desc)
		qty, qok := coerceInt(obj["quantity"])
		price, _ := coerceDecimalString(obj["unit_price"])
		if desc == "" || !qok || price == "" {
			dropped = append(dropped, fmt.Sprintf("items[%d]", i))
			continue
		}
		out = append(out, map[string]any{
			"description": desc,
			"quantity":    qty,
			"unit_price":  price,
		})
	}
	return out, dropped
}

func coerceInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t == float64(int(t)) && t >= 1 {
			return int(t), true
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil && n >= 1 {
			return n, true
		}
	}
	return 0, false
}

// coerceDecimalString renders a JSON number or numeric string as a plain
// decimal string. Returns ("", "") when the value cannot be interpreted.
func coerceDecimalString(v any) (value, changed string) {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', 2, 64), "number"
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", ""))
		s = strings.TrimLeft(s, "$€£")
		if s == "" {
			return "", ""
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return "", ""
		}
		return s, "string"
	default:
		return "", ""
	}
}
