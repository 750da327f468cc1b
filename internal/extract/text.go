// Package extract turns uploaded documents into text and text into the
// structured vendor/amount/line-item records the rest of the workflow
// consumes.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	docx "github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"

	"github.com/procure2pay/procure2pay/constants"
	"github.com/procure2pay/procure2pay/internal/ocr"
)

// TextExtractor converts an uploaded binary document into plain text.
// It dispatches on filename extension and never returns an error: any
// parse/OCR failure degrades to an empty string.
type TextExtractor struct {
	ocr    *ocr.Extractor
	logger *slog.Logger
}

func NewTextExtractor(o *ocr.Extractor, logger *slog.Logger) *TextExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextExtractor{ocr: o, logger: logger}
}

// Text extracts plain text from the document bytes. Empty input yields "".
func (t *TextExtractor) Text(ctx context.Context, data []byte, filename string) string {
	if len(data) == 0 {
		return ""
	}

	switch constants.FormatForFilename(filename) {
	case constants.PDF:
		text, err := pdfText(data)
		if err == nil {
			return text
		}
		t.logger.Error("extract.pdf.failed", "filename", filename, "error", err)
		// Last resort: some callers upload plain text with a .pdf name.
		if s, ok := decodePlainText(data); ok {
			return s
		}
		return ""
	case constants.DOCX:
		text, err := docxText(data)
		if err != nil {
			t.logger.Error("extract.docx.failed", "filename", filename, "error", err)
			return ""
		}
		return text
	default:
		if t.ocr == nil {
			t.logger.Warn("extract.image.no_ocr", "filename", filename)
			return ""
		}
		text, err := t.ocr.ImageText(ctx, data)
		if err != nil {
			t.logger.Error("extract.image.failed", "filename", filename, "error", err)
			return ""
		}
		return text
	}
}

// pdfText concatenates every page's text with newline separators, using ""
// for pages that yield nothing. The pdf package panics on some malformed
// inputs, so failures are converted to an error here.
func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}

	chunks := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			chunks = append(chunks, "")
			continue
		}
		pageText, perr := page.GetPlainText(nil)
		if perr != nil {
			pageText = ""
		}
		chunks = append(chunks, pageText)
	}
	return strings.Join(chunks, "\n"), nil
}

// docxText concatenates paragraph texts with newline separators.
func docxText(data []byte) (string, error) {
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("docx parse: %w", err)
	}
	var chunks []string
	for _, it := range doc.Document.Body.Items {
		if p, ok := it.(*docx.Paragraph); ok {
			chunks = append(chunks, p.String())
		}
	}
	return strings.Join(chunks, "\n"), nil
}

// decodePlainText accepts the bytes as UTF-8 text when they are valid and
// mostly printable.
func decodePlainText(data []byte) (string, bool) {
	if !utf8.Valid(data) {
		return "", false
	}
	s := string(data)
	printable := 0
	total := 0
	for _, r := range s {
		total++
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	if total == 0 || printable*10 < total*9 {
		return "", false
	}
	return s, true
}
