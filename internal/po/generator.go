// Package po builds the purchase-order document and metadata snapshot
// produced on final approval.
package po

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/procure2pay/procure2pay/internal/entity"
	"github.com/procure2pay/procure2pay/internal/extract"
)

// Generator deterministically derives a purchase order from a request's
// extracted proforma metadata (or its raw line items when extraction
// produced none) and renders it as an XLSX artifact.
//
// Regeneration is always-fresh: repeated calls produce a new po_number and
// replace the prior artifact and metadata. Callers must only invoke it for
// requests that reached final approval; the generator does not re-check.
type Generator struct {
	logger *slog.Logger
}

func NewGenerator(logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{logger: logger}
}

// Generate returns the metadata snapshot and the rendered document bytes.
func (g *Generator) Generate(req *entity.PurchaseRequest, now time.Time) (entity.PurchaseOrder, []byte, error) {
	order := entity.PurchaseOrder{
		PONumber:    fmt.Sprintf("PO-%s-%.8s", now.UTC().Format("20060102"), req.ID.String()),
		Vendor:      extract.UnknownVendor,
		Currency:    extract.DefaultCurrency,
		TotalAmount: extract.DecimalString(req.Amount),
		GeneratedAt: now.UTC(),
	}

	meta := req.ProformaMetadata
	if meta != nil {
		if meta.Vendor != "" {
			order.Vendor = meta.Vendor
		}
		if meta.Currency != "" {
			order.Currency = meta.Currency
		}
		if meta.TotalAmount != "" {
			order.TotalAmount = meta.TotalAmount
		}
	}

	// Extracted proforma items win; otherwise fall back to the request's
	// own line items.
	if meta != nil && len(meta.Items) > 0 {
		order.Items = append([]entity.LineItem(nil), meta.Items...)
	} else {
		order.Items = make([]entity.LineItem, 0, len(req.Items))
		for _, it := range req.Items {
			order.Items = append(order.Items, entity.LineItem{
				Description: it.Description,
				Quantity:    it.Quantity,
				UnitPrice:   extract.DecimalString(it.UnitPrice),
			})
		}
	}

	doc, err := g.render(order)
	if err != nil {
		return entity.PurchaseOrder{}, nil, fmt.Errorf("render purchase order: %w", err)
	}

	g.logger.Info("po.generate.ok",
		"request_id", req.ID,
		"po_number", order.PONumber,
		"vendor", order.Vendor,
		"total", order.TotalAmount,
		"items", len(order.Items),
		"doc_bytes", len(doc),
	)
	return order, doc, nil
}

// render lays the order out as a single-sheet XLSX workbook.
func (g *Generator) render(order entity.PurchaseOrder) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil {
			g.logger.Warn("po.render.close_error", "error", cerr)
		}
	}()

	const sheet = "Purchase Order"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	rows := [][]any{
		{"Purchase Order"},
		{"PO Number", order.PONumber},
		{"Vendor", order.Vendor},
		{"Currency", order.Currency},
		{"Total Amount", order.TotalAmount},
		{"Generated At", order.GeneratedAt.Format(time.RFC3339)},
		{},
		{"Description", "Quantity", "Unit Price"},
	}
	for _, it := range order.Items {
		rows = append(rows, []any{it.Description, it.Quantity, it.UnitPrice})
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Filename is the canonical artifact name for a generated order.
func Filename(order entity.PurchaseOrder) string {
	return order.PONumber + ".xlsx"
}
