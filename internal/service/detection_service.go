package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"permit-enforcement/internal/alert"
	"permit-enforcement/internal/domain/permit"
	"permit-enforcement/internal/ocr"
	"permit-enforcement/internal/utils"
)

type DetectionService struct {
	extractor   ocr.Extractor
	normalizer  utils.PlateNormalizer
	registry    permit.Registry
	dispatcher  alert.Dispatcher
	concurrency int
	log         zerolog.Logger
}

func NewDetectionService(
	extractor ocr.Extractor,
	normalizer utils.PlateNormalizer,
	registry permit.Registry,
	dispatcher alert.Dispatcher,
	concurrency int,
	log zerolog.Logger,
) *DetectionService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &DetectionService{
		extractor:   extractor,
		normalizer:  normalizer,
		registry:    registry,
		dispatcher:  dispatcher,
		concurrency: concurrency,
		log:         log,
	}
}

// ProcessImage runs one camera frame through extraction, permit lookup,
// classification and alerting. Errors for a single candidate are recorded in
// its CandidateResult; an error is returned only when the whole image could
// not be processed, in which case nothing was written and no alert was sent.
// An image whose ID already has recorded detections is not processed again.
func (s *DetectionService) ProcessImage(ctx context.Context, img permit.Image) (*permit.ProcessResult, error) {
	if len(img.Data) == 0 {
		return nil, invalid("image is empty")
	}
	// Callers that redeliver images pass a stable ID; a fresh ID cannot have been seen.
	redelivered := img.ID != uuid.Nil
	if !redelivered {
		img.ID = uuid.New()
	}
	if img.ArrivedAt.IsZero() {
		img.ArrivedAt = time.Now()
	}
	if img.Size == 0 {
		img.Size = int64(len(img.Data))
	}

	log := s.log.With().
		Str("image_id", img.ID.String()).
		Str("image_name", img.Name).
		Int64("image_size", img.Size).
		Str("source", img.Source).
		Logger()

	if redelivered {
		seen, err := s.registry.ImageProcessed(ctx, img.ID)
		if err != nil {
			log.Error().Err(err).Msg("could not check for earlier processing, image skipped")
			return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
		}
		if seen {
			log.Info().Msg("image already processed, skipping")
			return &permit.ProcessResult{
				ImageID:   img.ID,
				ImageName: img.Name,
				ArrivedAt: img.ArrivedAt,
				Duplicate: true,
			}, nil
		}
	}

	log.Info().Msg("processing image")

	lines, err := s.extractor.Extract(ctx, img.Data)
	if err != nil {
		log.Error().Err(err).Msg("text extraction failed, image skipped")
		return nil, fmt.Errorf("extract text from %s: %w", img.ID, err)
	}

	candidates := s.normalizer.Normalize(lines)
	log.Info().Int("lines", len(lines)).Strs("plates", candidates).Msg("detected license plates")

	result := &permit.ProcessResult{
		ImageID:    img.ID,
		ImageName:  img.Name,
		ArrivedAt:  img.ArrivedAt,
		Candidates: make([]permit.CandidateResult, len(candidates)),
	}
	if len(candidates) == 0 {
		return result, nil
	}

	err = s.registry.WithSession(ctx, func(store permit.Store) error {
		var g errgroup.Group
		g.SetLimit(s.concurrency)
		for i, plate := range candidates {
			g.Go(func() error {
				result.Candidates[i] = s.processCandidate(ctx, store, img, plate, log)
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		log.Error().Err(err).Msg("could not open permit registry session, image skipped")
		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	for _, c := range result.Candidates {
		if c.Classified && c.Classification.IsViolation() {
			result.Violations++
		}
	}

	log.Info().
		Int("candidates", len(result.Candidates)).
		Int("violations", result.Violations).
		Msg("image processed")
	return result, nil
}

func (s *DetectionService) processCandidate(ctx context.Context, store permit.Store, img permit.Image, plate string, log zerolog.Logger) permit.CandidateResult {
	res := permit.CandidateResult{Plate: plate}
	log = log.With().Str("plate", plate).Logger()

	detection := &permit.Detection{
		Plate:      plate,
		DetectedAt: img.ArrivedAt,
		ImageID:    img.ID,
		ImageName:  img.Name,
		ImageSize:  img.Size,
		Source:     img.Source,
	}
	if err := store.RecordDetection(ctx, detection); err != nil {
		res.RecordErr = fmt.Errorf("%w: record detection: %v", ErrStorage, err)
		log.Error().Err(err).Msg("failed to record detection, continuing")
	} else {
		log.Debug().Int64("detection_id", detection.ID).Msg("detection recorded")
	}

	current, err := store.Lookup(ctx, plate)
	if err != nil {
		res.LookupErr = fmt.Errorf("%w: lookup permit: %v", ErrStorage, err)
		log.Error().Err(err).Msg("failed to look up permit")
		return res
	}

	res.Classification = permit.Classify(current, img.ArrivedAt)
	res.Classified = true

	event := log.Info().Str("classification", string(res.Classification))
	if current != nil {
		event = event.Str("permit_status", string(current.Status)).Time("permit_expires_at", current.ExpiresAt)
	}
	event.Msg("plate classified")

	if !res.Classification.IsViolation() {
		return res
	}

	err = s.dispatcher.Send(ctx, alert.Alert{
		Plate:          plate,
		Classification: res.Classification,
		DetectedAt:     img.ArrivedAt,
		ImageID:        img.ID,
		ImageName:      img.Name,
	})
	if err != nil {
		res.DispatchErr = err
		log.Error().Err(err).Msg("failed to send violation alert")
		return res
	}
	res.Alerted = true
	return res
}

// FindDetections lists recorded detections, newest first.
func (s *DetectionService) FindDetections(ctx context.Context, plateQuery *string, from, to *string, limit, offset int) ([]permit.Detection, error) {
	filter := permit.DetectionFilter{Limit: limit, Offset: offset}

	if plateQuery != nil {
		if normalized := s.normalizer.NormalizePlate(*plateQuery); normalized != "" {
			filter.Plate = &normalized
		}
	}

	if from != nil && *from != "" {
		t, err := time.Parse(time.RFC3339, *from)
		if err != nil {
			return nil, invalid("invalid from time format, use RFC3339")
		}
		filter.From = &t
	}
	if to != nil && *to != "" {
		t, err := time.Parse(time.RFC3339, *to)
		if err != nil {
			return nil, invalid("invalid to time format, use RFC3339")
		}
		filter.To = &t
	}

	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	detections, err := s.registry.FindDetections(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: find detections: %v", ErrStorage, err)
	}
	return detections, nil
}
