package utils

import (
	"strings"

	"permit-enforcement/internal/ocr"
)

// PlateNormalizer turns OCR lines into plate candidates.
// The zero value keeps the recognized casing.
type PlateNormalizer struct {
	FoldCase bool
}

// NormalizePlate collapses runs of whitespace to single spaces and trims the ends.
func (n PlateNormalizer) NormalizePlate(raw string) string {
	normalized := strings.Join(strings.Fields(raw), " ")
	if n.FoldCase {
		normalized = strings.ToUpper(normalized)
	}
	return normalized
}

// Normalize joins each line's words into one candidate, drops empty lines and
// duplicates, and keeps first-seen order.
func (n PlateNormalizer) Normalize(lines []ocr.Line) []string {
	seen := make(map[string]struct{}, len(lines))
	candidates := make([]string, 0, len(lines))
	for _, line := range lines {
		candidate := n.NormalizePlate(strings.Join(line, " "))
		if candidate == "" {
			continue
		}
		if _, dup := seen[candidate]; dup {
			continue
		}
		seen[candidate] = struct{}{}
		candidates = append(candidates, candidate)
	}
	return candidates
}
