package llm

import "context"

// DocumentFields is the normalized shape we want from the LLM for a
// proforma or receipt document. Money fields are decimal strings.
type DocumentFields struct {
	Vendor      string      `json:"vendor"`
	Currency    string      `json:"currency"`     // ISO 4217
	TotalAmount string      `json:"total_amount"` // decimal
	Items       []ItemField `json:"items,omitempty"`
}

// ItemField is one extracted document line.
type ItemField struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"` // decimal
}

// ExtractRequest carries the text and hints for one extraction call.
type ExtractRequest struct {
	Text         string
	Source       string // "proforma" | "receipt"
	FilenameHint string
	MaxChars     int // excerpt cap; <=0 means the 4000-char default
}

// FieldExtractor is the interface the structured extractor depends on.
// Implementations must honor ctx deadlines; callers treat any error as
// "no AI result" and fall through to deterministic rules.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, req ExtractRequest) (DocumentFields, []byte /*rawJSON*/, error)
	ExtractItems(ctx context.Context, text string) ([]ItemField, error)
}
