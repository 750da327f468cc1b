package entity

import (
	"time"
)

// LineItem is one extracted or recorded document line. UnitPrice is kept as
// a decimal-preserving string so values survive JSON round-trips without
// floating-point drift.
type LineItem struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
}

// DocumentMetadata is the structured record produced by field extraction.
// Every field is always present; extraction never returns partial records.
type DocumentMetadata struct {
	Vendor           string     `json:"vendor"`
	Currency         string     `json:"currency"`
	TotalAmount      string     `json:"total_amount"` // decimal string, "0" when not found
	Items            []LineItem `json:"items"`
	ExtractedOn      time.Time  `json:"extracted_on"`
	Source           string     `json:"source"` // "proforma" | "receipt"
	RawExcerpt       string     `json:"raw_excerpt"`
	ExtractionMethod string     `json:"extraction_method"` // "ai" | "regex" | "failed"
	ExtractionError  bool       `json:"extraction_error"`
}

// PurchaseOrder is the canonical metadata snapshot generated on final
// approval and later used by receipt reconciliation.
type PurchaseOrder struct {
	PONumber    string     `json:"po_number"`
	Vendor      string     `json:"vendor"`
	Currency    string     `json:"currency"`
	TotalAmount string     `json:"total_amount"`
	GeneratedAt time.Time  `json:"generated_at"`
	Items       []LineItem `json:"items"`
}

// FieldMismatch is a single expected/actual discrepancy.
type FieldMismatch struct {
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// ItemMismatch is one purchase-order line that found no counterpart in the
// receipt. Expected is nil for the aggregate "no items found" entry.
type ItemMismatch struct {
	Expected *LineItem `json:"expected,omitempty"`
	Reason   string    `json:"reason"`
}

// MismatchSet collects everything reconciliation found wrong.
type MismatchSet struct {
	Reason string         `json:"reason,omitempty"` // set when an input was missing
	Vendor *FieldMismatch `json:"vendor,omitempty"`
	Amount *FieldMismatch `json:"amount,omitempty"`
	Items  []ItemMismatch `json:"items,omitempty"`
}

// Empty reports whether no mismatch of any kind was recorded.
func (m MismatchSet) Empty() bool {
	return m.Reason == "" && m.Vendor == nil && m.Amount == nil && len(m.Items) == 0
}

// ValidationOutcome is the reconciliation verdict returned to callers and
// persisted as the request's receipt_validation snapshot.
type ValidationOutcome struct {
	IsValid    bool        `json:"is_valid"`
	Mismatches MismatchSet `json:"mismatches"`
	RawExcerpt string      `json:"raw_excerpt,omitempty"`
}
