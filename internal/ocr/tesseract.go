//go:build tesseract

package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// TesseractExtractor runs the local Tesseract engine. A fresh client is used per
// call because gosseract clients are not safe for concurrent use.
type TesseractExtractor struct {
	languages []string
}

func NewTesseractExtractor(languages ...string) *TesseractExtractor {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &TesseractExtractor{languages: languages}
}

func (e *TesseractExtractor) Extract(ctx context.Context, image []byte) ([]Line, error) {
	if len(image) == 0 {
		return nil, errEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.languages...); err != nil {
		return nil, fmt.Errorf("%w: set language: %v", ErrExtraction, err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("%w: set image: %v", ErrExtraction, err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("%w: tesseract: %v", ErrExtraction, err)
	}
	return splitLines(text), nil
}
