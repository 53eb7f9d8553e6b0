//go:build !tesseract

package ocr

import (
	"context"
	"fmt"
)

// TesseractExtractor is unavailable in builds without the tesseract tag.
type TesseractExtractor struct {
	languages []string
}

func NewTesseractExtractor(languages ...string) *TesseractExtractor {
	return &TesseractExtractor{languages: languages}
}

func (e *TesseractExtractor) Extract(context.Context, []byte) ([]Line, error) {
	return nil, fmt.Errorf("%w: built without tesseract support (use -tags tesseract)", ErrExtraction)
}
