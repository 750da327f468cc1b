package constants

import (
	"path/filepath"
	"strings"
)

// File formats the text extractor knows how to handle. Anything that is
// not a PDF or word-processor document is treated as a raster image and
// sent through OCR.
const (
	PDF   = "PDF"
	DOCX  = "DOCX"
	IMAGE = "IMAGE"
)

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// FormatForFilename maps a filename to the extraction format.
func FormatForFilename(name string) string {
	switch NormalizeExt(filepath.Ext(name)) {
	case "pdf":
		return PDF
	case "docx", "doc":
		return DOCX
	default:
		return IMAGE
	}
}
