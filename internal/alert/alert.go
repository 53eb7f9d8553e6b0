package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"permit-enforcement/internal/domain/permit"
)

// ErrDispatch marks a notification that could not be delivered.
var ErrDispatch = errors.New("alert dispatch failed")

// Alert is one violation notification.
type Alert struct {
	Plate          string                `json:"license_plate"`
	Classification permit.Classification `json:"classification"`
	DetectedAt     time.Time             `json:"detected_at"`
	ImageID        uuid.UUID             `json:"image_id"`
	ImageName      string                `json:"image_name,omitempty"`
}

type Dispatcher interface {
	Send(ctx context.Context, a Alert) error
}

// Multi fans an alert out to every dispatcher. All are attempted; the returned
// error joins the individual failures.
type Multi []Dispatcher

func (m Multi) Send(ctx context.Context, a Alert) error {
	var errs []error
	for _, d := range m {
		if err := d.Send(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrDispatch, errors.Join(errs...))
}

// LogDispatcher writes the alert to the log only.
type LogDispatcher struct {
	log zerolog.Logger
}

func NewLogDispatcher(log zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Send(_ context.Context, a Alert) error {
	d.log.Warn().
		Str("plate", a.Plate).
		Str("classification", string(a.Classification)).
		Str("image_id", a.ImageID.String()).
		Str("image_name", a.ImageName).
		Time("detected_at", a.DetectedAt).
		Msg("parking violation")
	return nil
}
