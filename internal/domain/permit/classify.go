package permit

import "time"

type Classification string

const (
	ClassificationValid       Classification = "VALID"
	ClassificationViolating   Classification = "VIOLATING"
	ClassificationUnpermitted Classification = "UNPERMITTED"
)

// IsViolation reports whether the classification warrants an alert.
func (c Classification) IsViolation() bool {
	return c == ClassificationViolating || c == ClassificationUnpermitted
}

// Classify decides the outcome for one detection. A nil permit means none is on record.
func Classify(p *Permit, now time.Time) Classification {
	if p == nil {
		return ClassificationUnpermitted
	}
	if p.IsValidAt(now) {
		return ClassificationValid
	}
	return ClassificationViolating
}

// IsValidAt reports whether the permit is active and expires strictly after t.
func (p *Permit) IsValidAt(t time.Time) bool {
	return p.Status == StatusActive && p.ExpiresAt.After(t)
}
