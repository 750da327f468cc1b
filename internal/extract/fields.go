package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/procure2pay/procure2pay/constants"
	"github.com/procure2pay/procure2pay/internal/common"
	"github.com/procure2pay/procure2pay/internal/entity"
	"github.com/procure2pay/procure2pay/internal/llm"
)

const (
	defaultExcerptChars = 500
	defaultPromptChars  = 4000

	// UnknownVendor is the vendor default when no vendor could be located.
	UnknownVendor = "Unknown Vendor"
	// DefaultCurrency is assumed when no currency code could be located.
	DefaultCurrency = "USD"
)

// FieldsExtractor turns plain document text into a structured metadata
// record. It tries the AI-assisted path first (when configured) and falls
// back to deterministic pattern rules; it never returns an error.
type FieldsExtractor struct {
	ai             llm.FieldExtractor // nil = AI extraction disabled
	excerptChars   int
	maxPromptChars int
	now            func() time.Time
	logger         *slog.Logger
}

func NewFieldsExtractor(ai llm.FieldExtractor, cfg common.ExtractConfig, logger *slog.Logger) *FieldsExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	excerpt := cfg.ExcerptChars
	if excerpt <= 0 {
		excerpt = defaultExcerptChars
	}
	prompt := cfg.MaxPromptChars
	if prompt <= 0 {
		prompt = defaultPromptChars
	}
	return &FieldsExtractor{
		ai:             ai,
		excerptChars:   excerpt,
		maxPromptChars: prompt,
		now:            time.Now,
		logger:         logger,
	}
}

// Fields extracts {vendor, currency, total_amount, items} from text.
// The returned record always carries every field; absence degrades to
// defaults plus the extraction_method/extraction_error flags.
func (e *FieldsExtractor) Fields(ctx context.Context, text, source string) entity.DocumentMetadata {
	if text == "" {
		return entity.DocumentMetadata{
			Vendor:           UnknownVendor,
			Currency:         DefaultCurrency,
			TotalAmount:      "0",
			Items:            []entity.LineItem{},
			ExtractedOn:      e.now().UTC(),
			Source:           source,
			RawExcerpt:       "",
			ExtractionMethod: constants.ExtractionMethodFailed,
			ExtractionError:  true,
		}
	}

	if e.ai != nil {
		if md, ok := e.aiFields(ctx, text, source); ok {
			return md
		}
	}
	return e.regexFields(text, source)
}

// aiFields attempts the AI-assisted pass. Any failure (no credential,
// timeout, malformed JSON) reports ok=false and the caller falls through.
func (e *FieldsExtractor) aiFields(ctx context.Context, text, source string) (entity.DocumentMetadata, bool) {
	fields, _, err := e.ai.ExtractFields(ctx, llm.ExtractRequest{
		Text:     text,
		Source:   source,
		MaxChars: e.maxPromptChars,
	})
	if err != nil {
		e.logger.Warn("extract.fields.ai_failed", "source", source, "error", err)
		return entity.DocumentMetadata{}, false
	}

	md := entity.DocumentMetadata{
		Vendor:           fields.Vendor,
		Currency:         fields.Currency,
		TotalAmount:      fields.TotalAmount,
		Items:            itemFieldsToLineItems(fields.Items),
		ExtractedOn:      e.now().UTC(),
		Source:           source,
		RawExcerpt:       excerpt(text, e.excerptChars),
		ExtractionMethod: constants.ExtractionMethodAI,
		ExtractionError:  false,
	}
	if md.Vendor == "" {
		md.Vendor = UnknownVendor
	}
	if md.Currency == "" {
		md.Currency = DefaultCurrency
	}
	if md.TotalAmount == "" {
		md.TotalAmount = "0"
	}
	e.logger.Info("extract.fields.ai_ok", "source", source, "vendor", md.Vendor, "items", len(md.Items))
	return md, true
}

// regexFields applies the deterministic label rules.
func (e *FieldsExtractor) regexFields(text, source string) entity.DocumentMetadata {
	vendor, vendorFound := findVendor(text)
	currency, currencyFound := findCurrency(text)
	total, totalFound := findTotal(text)

	md := entity.DocumentMetadata{
		Vendor:           UnknownVendor,
		Currency:         DefaultCurrency,
		TotalAmount:      "0",
		Items:            labeledItems(text),
		ExtractedOn:      e.now().UTC(),
		Source:           source,
		RawExcerpt:       excerpt(text, e.excerptChars),
		ExtractionMethod: constants.ExtractionMethodRegex,
		ExtractionError:  !vendorFound && !totalFound,
	}
	if vendorFound && vendor != "" {
		md.Vendor = vendor
	}
	if currencyFound {
		md.Currency = currency
	}
	if totalFound {
		md.TotalAmount = DecimalString(total)
	}
	if md.Items == nil {
		md.Items = []entity.LineItem{}
	}

	e.logger.Info("extract.fields.regex",
		"source", source,
		"vendor_found", vendorFound,
		"total_found", totalFound,
		"items", len(md.Items),
	)
	return md
}

// Items extracts line items from receipt text: every deterministic item
// shape first, then an AI items-only pass when nothing matched.
func (e *FieldsExtractor) Items(ctx context.Context, text string) []entity.LineItem {
	items := freeFormItems(text)
	if len(items) > 0 || e.ai == nil || text == "" {
		return items
	}
	aiItems, err := e.ai.ExtractItems(ctx, clipText(text, e.maxPromptChars))
	if err != nil {
		e.logger.Warn("extract.items.ai_failed", "error", err)
		return items
	}
	return itemFieldsToLineItems(aiItems)
}

func itemFieldsToLineItems(in []llm.ItemField) []entity.LineItem {
	out := make([]entity.LineItem, 0, len(in))
	for _, it := range in {
		out = append(out, entity.LineItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	return out
}

func excerpt(s string, max int) string {
	return clipText(s, max)
}

func clipText(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
