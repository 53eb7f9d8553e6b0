package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrExtraction marks failures of the OCR collaborator.
var ErrExtraction = errors.New("text extraction failed")

var errEmptyImage = fmt.Errorf("%w: empty image", ErrExtraction)

// Line is one recognized line of text as ordered word tokens.
type Line []string

// Extractor recognizes text lines in an encoded image.
type Extractor interface {
	Extract(ctx context.Context, image []byte) ([]Line, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, image []byte) ([]Line, error)

func (f ExtractorFunc) Extract(ctx context.Context, image []byte) ([]Line, error) {
	return f(ctx, image)
}

// splitLines turns free text into lines of words, dropping blank lines.
func splitLines(text string) []Line {
	var lines []Line
	for _, raw := range strings.Split(text, "\n") {
		words := strings.Fields(raw)
		if len(words) == 0 {
			continue
		}
		lines = append(lines, Line(words))
	}
	return lines
}
