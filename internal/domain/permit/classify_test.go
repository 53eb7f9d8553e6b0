package permit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		permit *Permit
		want   Classification
	}{
		{name: "absent", permit: nil, want: ClassificationUnpermitted},
		{name: "active future", permit: &Permit{Status: StatusActive, ExpiresAt: now.Add(time.Minute)}, want: ClassificationValid},
		{name: "active expires now", permit: &Permit{Status: StatusActive, ExpiresAt: now}, want: ClassificationViolating},
		{name: "active past", permit: &Permit{Status: StatusActive, ExpiresAt: now.Add(-time.Hour)}, want: ClassificationViolating},
		{name: "inactive future", permit: &Permit{Status: StatusInactive, ExpiresAt: now.Add(time.Hour)}, want: ClassificationViolating},
		{name: "unknown status", permit: &Permit{Status: "Pending", ExpiresAt: now.Add(time.Hour)}, want: ClassificationViolating},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.permit, now))
		})
	}
}

func TestClassifyAbsentAtAnyTime(t *testing.T) {
	for _, ts := range []time.Time{{}, time.Unix(0, 0), time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)} {
		assert.Equal(t, ClassificationUnpermitted, Classify(nil, ts))
	}
}

func TestIsViolation(t *testing.T) {
	assert.False(t, ClassificationValid.IsViolation())
	assert.True(t, ClassificationViolating.IsViolation())
	assert.True(t, ClassificationUnpermitted.IsViolation())
}

func TestCandidateResultErr(t *testing.T) {
	assert.NoError(t, CandidateResult{}.Err())

	recordErr := errors.New("insert failed")
	dispatchErr := errors.New("smtp down")
	err := CandidateResult{RecordErr: recordErr, DispatchErr: dispatchErr}.Err()
	assert.ErrorIs(t, err, recordErr)
	assert.ErrorIs(t, err, dispatchErr)
}
