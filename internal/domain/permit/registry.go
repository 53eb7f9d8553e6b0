package permit

import (
	"context"

	"github.com/google/uuid"
)

// Store is the set of single round trip operations the detection and permit
// flows need. Lookup returns nil, nil when the plate has no permit.
type Store interface {
	Lookup(ctx context.Context, plate string) (*Permit, error)
	RecordDetection(ctx context.Context, d *Detection) error
	InsertPermit(ctx context.Context, p *Permit) error
}

// Registry hands out Stores bound to one connection for the lifetime of fn.
// The connection is released when fn returns, whatever the outcome.
type Registry interface {
	WithSession(ctx context.Context, fn func(Store) error) error
	// ImageProcessed reports whether detections were already recorded for imageID.
	ImageProcessed(ctx context.Context, imageID uuid.UUID) (bool, error)
	FindDetections(ctx context.Context, filter DetectionFilter) ([]Detection, error)
	FindPermits(ctx context.Context, plate string) ([]Permit, error)
}
