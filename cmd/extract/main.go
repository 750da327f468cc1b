// Command extract runs document understanding on a single file and prints
// the structured metadata as JSON. Debugging tool; no database involved.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/procure2pay/procure2pay/internal/common"
	"github.com/procure2pay/procure2pay/internal/extract"
	"github.com/procure2pay/procure2pay/internal/llm"
	"github.com/procure2pay/procure2pay/internal/llm/openai"
	"github.com/procure2pay/procure2pay/internal/ocr"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "extract <document-path>")
		os.Exit(2)
	}
	path := os.Args[1]

	content, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read file", "path", path, "error", err)
		os.Exit(1)
	}

	cfg := common.LoadConfig()

	var fieldAI llm.FieldExtractor
	if client := openai.New(cfg.LLM, logger); client != nil {
		fieldAI = client
	}

	ocrx := ocr.NewExtractor(ocr.Config{
		Tesseract:     cfg.OCR.Tesseract,
		TesseractLang: cfg.OCR.TesseractLang,
		TessdataDir:   cfg.OCR.TessdataDir,
	}, logger)
	textExtractor := extract.NewTextExtractor(ocrx, logger)
	fieldsExtractor := extract.NewFieldsExtractor(fieldAI, cfg.Extract, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	text := textExtractor.Text(ctx, content, filepath.Base(path))
	md := fieldsExtractor.Fields(ctx, text, "proforma")

	logger.Info("extraction done",
		"path", path,
		"text_bytes", len(text),
		"method", md.ExtractionMethod,
		"extraction_error", md.ExtractionError,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(md); err != nil {
		logger.Error("encode metadata", "error", err)
		os.Exit(1)
	}
}
