// Package ocr shells out to tesseract to recognize text in raster images.
// Proforma and receipt uploads arrive as in-memory blobs, so recognition
// goes through a temp file; the Runner seam keeps the external binary out
// of unit tests.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

type Config struct {
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	TesseractLang string // default "eng"
	TessdataDir   string
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	return &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// WithRunner swaps the command runner. Test hook.
func (e *Extractor) WithRunner(r Runner) *Extractor {
	e.runner = r
	return e
}

// ImageText runs tesseract over the given image bytes and returns the
// recognized text.
func (e *Extractor) ImageText(ctx context.Context, data []byte) (string, error) {
	start := time.Now()

	f, err := os.CreateTemp("", "p2p-ocr-*")
	if err != nil {
		return "", fmt.Errorf("ocr temp file: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()
	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("ocr temp write: %w", err)
	}

	args := []string{f.Name(), "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	// tesseract <file> stdout -l <lang>
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 512))
	}

	e.logger.Debug("ocr.image.ok",
		"bytes_in", len(data),
		"chars_out", len(out),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return string(out), nil
}
