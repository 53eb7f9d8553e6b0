package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"permit-enforcement/internal/domain/permit"
	"permit-enforcement/internal/utils"
)

// ExpirationDateLayout is the accepted expiration_date format (YYYY-MM-DD).
const ExpirationDateLayout = "2006-01-02"

type PermitService struct {
	registry   permit.Registry
	normalizer utils.PlateNormalizer
	loc        *time.Location
	now        func() time.Time
	log        zerolog.Logger
}

func NewPermitService(registry permit.Registry, normalizer utils.PlateNormalizer, loc *time.Location, log zerolog.Logger) *PermitService {
	if loc == nil {
		loc = time.UTC
	}
	return &PermitService{
		registry:   registry,
		normalizer: normalizer,
		loc:        loc,
		now:        time.Now,
		log:        log,
	}
}

// Submit validates a permit request and stores it as an Active permit.
// Rejections are *ValidationError or permit.ErrConflict; registry failures
// wrap ErrStorage.
func (s *PermitService) Submit(ctx context.Context, plate, expirationDate string) (*permit.Permit, error) {
	plate = s.normalizer.NormalizePlate(plate)
	if plate == "" || expirationDate == "" {
		return nil, invalid("License plate and expiration date are required.")
	}

	expiresAt, err := time.ParseInLocation(ExpirationDateLayout, expirationDate, s.loc)
	if err != nil {
		return nil, invalid("Invalid expiration date format. Use 'YYYY-MM-DD'.")
	}

	now := s.now()
	if !expiresAt.After(now) {
		return nil, invalid("Expiration date must be in the future.")
	}

	p := &permit.Permit{
		Plate:     plate,
		Status:    permit.StatusActive,
		ExpiresAt: expiresAt,
	}

	err = s.registry.WithSession(ctx, func(store permit.Store) error {
		current, err := store.Lookup(ctx, plate)
		if err != nil {
			return fmt.Errorf("%w: lookup permit: %v", ErrStorage, err)
		}
		if current != nil && current.IsValidAt(now) {
			return permit.ErrConflict
		}
		if err := store.InsertPermit(ctx, p); err != nil {
			if errors.Is(err, permit.ErrConflict) {
				return err
			}
			return fmt.Errorf("%w: insert permit: %v", ErrStorage, err)
		}
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, permit.ErrConflict):
		s.log.Info().Str("plate", plate).Msg("permit request rejected, active permit exists")
		return nil, err
	case errors.Is(err, ErrStorage):
		s.log.Error().Err(err).Str("plate", plate).Msg("failed to store permit request")
		return nil, err
	default:
		s.log.Error().Err(err).Str("plate", plate).Msg("permit registry unavailable")
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.log.Info().
		Int64("permit_id", p.ID).
		Str("plate", plate).
		Time("expires_at", p.ExpiresAt).
		Msg("permit request stored")
	return p, nil
}

// FindPermits returns every permit row for plate, newest first.
func (s *PermitService) FindPermits(ctx context.Context, plateQuery string) ([]permit.Permit, error) {
	plate := s.normalizer.NormalizePlate(plateQuery)
	if plate == "" {
		return nil, invalid("plate query cannot be empty")
	}

	permits, err := s.registry.FindPermits(ctx, plate)
	if err != nil {
		return nil, fmt.Errorf("%w: find permits: %v", ErrStorage, err)
	}
	return permits, nil
}
