package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/procure2pay/procure2pay/internal/entity"
)

// Label-based rules shared by proforma ingestion and receipt parsing.
// The amount patterns capture an optional currency symbol in its own group,
// so numeric extraction must pick the rightmost digit-bearing group.
var (
	reVendor = regexp.MustCompile(`(?i)(?:^|\n)(?:Vendor|Supplier|Company)[:\-]?[ \t]*(.*?)(?:\n|$)`)
	// Receipt vendor lookup is deliberately unanchored: OCR output rarely
	// preserves clean line starts.
	reVendorLoose = regexp.MustCompile(`(?i)(?:Vendor|Supplier|Company)[:\-]?[ \t]*(.*?)(?:\n|$)`)
	reCurrency    = regexp.MustCompile(`(?i)(?:Currency|Curr)[:\-]?\s*([A-Z]{3})`)
	reTotal       = regexp.MustCompile(`(?i)(?:Total|Grand Total|Amount)[:\-]?\s*([$€£]?)(\d+(?:,\d{3})*(?:\.\d{1,2})?)`)

	// Item shapes, loosest last: label-prefixed fields, "desc x qty @ price",
	// "qty x desc @ price".
	reItemLabeled = regexp.MustCompile(`(?i)(?:Item|Product|Description)[:\-]?\s*(.*?)\s*(?:Qty|Quantity)[:\-]?\s*(\d+)\s*(?:Price|Unit Price|Rate|Cost)[:\-]?\s*([$€£]?)(\d+(?:,\d{3})*(?:\.\d{1,2})?)`)
	reItemDescQty = regexp.MustCompile(`(?i)(.*?)\s*x?\s*(\d+)\s*@?\s*([$€£]?)(\d+(?:,\d{3})*(?:\.\d{1,2})?)`)
	reItemQtyDesc = regexp.MustCompile(`(?i)(\d+)\s*x?\s*(.*?)\s*@?\s*([$€£]?)(\d+(?:,\d{3})*(?:\.\d{1,2})?)`)
)

// findVendor returns the trimmed remainder of the first labeled vendor line.
func findVendor(text string) (string, bool) {
	m := reVendor.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// findCurrency returns the 3-letter code after a currency label.
func findCurrency(text string) (string, bool) {
	m := reCurrency.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// FindVendorLine locates a labeled vendor anywhere in receipt text.
func FindVendorLine(text string) (string, bool) {
	m := reVendorLoose.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// FindTotalAmount locates a labeled total anywhere in the text.
func FindTotalAmount(text string) (decimal.Decimal, bool) {
	return findTotal(text)
}

// findTotal extracts the labeled total as an exact decimal. When the pattern
// has multiple capture groups, the rightmost group containing at least one
// digit wins; this resolves the ambiguity between the currency-symbol group
// and the numeral group. Do not simplify.
func findTotal(text string) (decimal.Decimal, bool) {
	return findDecimal(reTotal, text)
}

func findDecimal(re *regexp.Regexp, text string) (decimal.Decimal, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return decimal.Decimal{}, false
	}
	for i := len(m) - 1; i >= 1; i-- {
		g := m[i]
		if g == "" || !strings.ContainsAny(g, "0123456789") {
			continue
		}
		d, err := decimal.NewFromString(strings.TrimSpace(strings.ReplaceAll(g, ",", "")))
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	}
	return decimal.Decimal{}, false
}

// labeledItems extracts line items via the label-prefixed pattern only.
// Items whose quantity or price fail to parse are dropped, not the record.
func labeledItems(text string) []entity.LineItem {
	return itemsFromMatches(reItemLabeled.FindAllStringSubmatch(text, -1), false)
}

// freeFormItems extracts line items via all item shapes, appending whatever
// each pattern yields. Receipt text is messy; junk entries are tolerated
// because reconciliation only matches in the PO -> receipt direction.
func freeFormItems(text string) []entity.LineItem {
	var items []entity.LineItem
	items = append(items, itemsFromMatches(reItemLabeled.FindAllStringSubmatch(text, -1), false)...)
	items = append(items, itemsFromMatches(reItemDescQty.FindAllStringSubmatch(text, -1), false)...)
	items = append(items, itemsFromMatches(reItemQtyDesc.FindAllStringSubmatch(text, -1), true)...)
	return items
}

// itemsFromMatches converts (desc, qty, symbol, price) submatches into line
// items. qtyFirst flips the first two groups for the "qty x desc" shape.
func itemsFromMatches(matches [][]string, qtyFirst bool) []entity.LineItem {
	var items []entity.LineItem
	for _, m := range matches {
		if len(m) != 5 {
			continue
		}
		desc, qtyStr := m[1], m[2]
		if qtyFirst {
			desc, qtyStr = m[2], m[1]
		}
		qty, err := strconv.Atoi(qtyStr)
		if err != nil {
			continue
		}
		price, err := decimal.NewFromString(strings.ReplaceAll(m[4], ",", ""))
		if err != nil {
			continue
		}
		items = append(items, entity.LineItem{
			Description: strings.TrimSpace(desc),
			Quantity:    qty,
			UnitPrice:   DecimalString(price),
		})
	}
	return items
}

// DecimalString renders a decimal preserving its parsed scale, so
// "1,050.00" survives as "1050.00" rather than "1050".
func DecimalString(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}
