package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/procure2pay/procure2pay/internal/llm"
)

const defaultMaxChars = 4000

// ExtractFields implements llm.FieldExtractor using text-only chat/completions.
func (c *Client) ExtractFields(ctx context.Context, req llm.ExtractRequest) (llm.DocumentFields, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"source", req.Source,
		"text_len", len(req.Text),
	)

	schema := llm.BuildDocumentJSONSchema()
	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"max_tokens":  500,
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": buildUserPrompt(req) + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	content, raw, err := c.chat(ctx, body)
	if err != nil {
		c.log.Error("llm.extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.DocumentFields{}, raw, err
	}

	rawContent := []byte(llm.StripCodeFence(content))

	// Validate strictly first; on failure try a sanitize pass that coerces
	// model-emitted numbers into decimal strings and re-validate.
	if err := llm.ValidateJSONAgainstSchema(schema, rawContent); err != nil {
		cleaned, dropped, sErr := llm.NormalizeAndSanitizeJSON(rawContent, c.log)
		if sErr != nil {
			c.log.Error("llm.extract.sanitize_failed",
				"req_id", rid, "error", sErr,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return llm.DocumentFields{}, rawContent, fmt.Errorf("sanitize failed: %w", sErr)
		}
		if vErr := llm.ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			c.log.Error("llm.extract.schema_validation_failed",
				"req_id", rid, "error", vErr, "content", string(rawContent),
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			return llm.DocumentFields{}, rawContent, fmt.Errorf("schema validation failed: %w", vErr)
		}
		c.log.Warn("llm.extract.lenient_sanitize_applied",
			"req_id", rid, "dropped", dropped,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		rawContent = cleaned
	}

	var out llm.DocumentFields
	if err := json.Unmarshal(rawContent, &out); err != nil {
		c.log.Error("llm.extract.unmarshal_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.DocumentFields{}, rawContent, fmt.Errorf("unmarshal fields: %w", err)
	}

	c.log.Info("llm.extract.ok",
		"req_id", rid,
		"vendor", out.Vendor,
		"total", out.TotalAmount,
		"currency", out.Currency,
		"items", len(out.Items),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, rawContent, nil
}

// ExtractItems asks for an items-only JSON array. Used by reconciliation
// when the deterministic item patterns matched nothing.
func (c *Client) ExtractItems(ctx context.Context, text string) ([]llm.ItemField, error) {
	rid := uuid.New().String()
	start := time.Now()

	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": c.cfg.Temperature,
		"max_tokens":  500,
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": "Extract a list of items from the receipt with description, quantity, and unit_price. " +
				`Respond as JSON array: [{"description": "string", "quantity": number, "unit_price": number}]` +
				"\n\nDocument text:\n" + clip(text, defaultMaxChars)},
		},
	}

	content, _, err := c.chat(ctx, body)
	if err != nil {
		c.log.Error("llm.items.http_error", "req_id", rid, "error", err)
		return nil, err
	}

	cleaned, err := llm.SanitizeItemsJSON([]byte(llm.StripCodeFence(content)))
	if err != nil {
		c.log.Error("llm.items.sanitize_failed", "req_id", rid, "error", err)
		return nil, err
	}
	if err := llm.ValidateJSONAgainstSchema(llm.BuildItemsJSONSchema(), cleaned); err != nil {
		c.log.Error("llm.items.schema_validation_failed", "req_id", rid, "error", err)
		return nil, err
	}

	var items []llm.ItemField
	if err := json.Unmarshal(cleaned, &items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}

	c.log.Info("llm.items.ok", "req_id", rid, "items", len(items),
		"elapsed_ms", time.Since(start).Milliseconds())
	return items, nil
}

// chat posts the body and returns the first choice's message content.
func (c *Client) chat(ctx context.Context, body map[string]any) (string, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		return "", raw, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", raw, fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", raw, fmt.Errorf("no choices in openai response")
	}
	return strings.TrimSpace(cc.Choices[0].Message.Content), raw, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai http error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if cerr := Body.Close(); cerr != nil {
			c.log.Warn("openai response body close error", "error", cerr)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

const systemPrompt = "You are an expert at extracting structured data from procurement documents. " +
	"Respond only with valid JSON. Money values are decimal strings, never floats. " +
	"Currency must be a 3-letter ISO 4217 code. Never output null; omit absent fields."

func buildUserPrompt(req llm.ExtractRequest) string {
	max := req.MaxChars
	if max <= 0 {
		max = defaultMaxChars
	}
	var b strings.Builder
	b.WriteString("Extract the following from the ")
	if req.Source != "" {
		b.WriteString(req.Source)
	} else {
		b.WriteString("document")
	}
	b.WriteString(": vendor name, currency (3-letter code), total amount, and a list of items " +
		"with description, quantity, and unit_price.")
	if req.FilenameHint != "" {
		b.WriteString("\nFilename: ")
		b.WriteString(req.FilenameHint)
	}
	b.WriteString("\n\nDocument text:\n")
	b.WriteString(clip(req.Text, max))
	return b.String()
}

func clip(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
