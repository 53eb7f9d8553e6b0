package permit

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrConflict is returned when a plate already holds an active, unexpired permit.
var ErrConflict = errors.New("active permit already exists")

type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

type Permit struct {
	ID        int64     `json:"id"`
	Plate     string    `json:"license_plate"`
	Status    Status    `json:"permit_status"`
	ExpiresAt time.Time `json:"expiration_time"`
	CreatedAt time.Time `json:"created_at"`
}

// Image is one arrival from a camera feed. Data is treated as immutable.
type Image struct {
	ID        uuid.UUID
	Name      string
	Size      int64
	Source    string
	Data      []byte
	ArrivedAt time.Time
}

// Detection is the append-only audit entry written for every candidate plate.
type Detection struct {
	ID         int64     `json:"id"`
	Plate      string    `json:"license_plate"`
	DetectedAt time.Time `json:"detection_time"`
	ImageID    uuid.UUID `json:"image_id"`
	ImageName  string    `json:"image_name,omitempty"`
	ImageSize  int64     `json:"image_size,omitempty"`
	Source     string    `json:"source,omitempty"`
}

type DetectionFilter struct {
	Plate  *string
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

type CandidateResult struct {
	Plate          string
	Classification Classification
	// Classified is false when the permit lookup failed.
	Classified  bool
	Alerted     bool
	RecordErr   error
	LookupErr   error
	DispatchErr error
}

// Err joins every error seen while handling the candidate.
func (r CandidateResult) Err() error {
	return errors.Join(r.RecordErr, r.LookupErr, r.DispatchErr)
}

type ProcessResult struct {
	ImageID    uuid.UUID
	ImageName  string
	ArrivedAt  time.Time
	Candidates []CandidateResult
	Violations int
	// Duplicate is set when the image had already been processed.
	Duplicate bool
}
