package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"permit-enforcement/internal/alert"
	"permit-enforcement/internal/domain/permit"
	"permit-enforcement/internal/ocr"
	"permit-enforcement/internal/repository"
)

var errDown = errors.New("connection refused")

func staticExtractor(lines ...ocr.Line) ocr.Extractor {
	return ocr.ExtractorFunc(func(context.Context, []byte) ([]ocr.Line, error) {
		return lines, nil
	})
}

func failingExtractor() ocr.Extractor {
	return ocr.ExtractorFunc(func(context.Context, []byte) ([]ocr.Line, error) {
		return nil, errors.Join(ocr.ErrExtraction, errDown)
	})
}

// faultyRegistry wraps the in-memory registry and fails selected operations.
type faultyRegistry struct {
	*repository.MemoryRegistry

	mu            sync.Mutex
	sessionErr    error
	recordFailFor map[string]bool
	lookupFailFor map[string]bool
	insertErr     error
	processedErr  error
	records       int
	sessions      int
}

func newFaultyRegistry(now func() time.Time) *faultyRegistry {
	return &faultyRegistry{
		MemoryRegistry: repository.NewMemoryRegistry(now),
		recordFailFor:  map[string]bool{},
		lookupFailFor:  map[string]bool{},
	}
}

func (f *faultyRegistry) WithSession(ctx context.Context, fn func(permit.Store) error) error {
	f.mu.Lock()
	f.sessions++
	err := f.sessionErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return fn(f)
}

func (f *faultyRegistry) RecordDetection(ctx context.Context, d *permit.Detection) error {
	f.mu.Lock()
	f.records++
	fail := f.recordFailFor[d.Plate]
	f.mu.Unlock()
	if fail {
		return errDown
	}
	return f.MemoryRegistry.RecordDetection(ctx, d)
}

func (f *faultyRegistry) Lookup(ctx context.Context, plate string) (*permit.Permit, error) {
	if f.lookupFailFor[plate] {
		return nil, errDown
	}
	return f.MemoryRegistry.Lookup(ctx, plate)
}

func (f *faultyRegistry) InsertPermit(ctx context.Context, p *permit.Permit) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.MemoryRegistry.InsertPermit(ctx, p)
}

func (f *faultyRegistry) ImageProcessed(ctx context.Context, imageID uuid.UUID) (bool, error) {
	if f.processedErr != nil {
		return false, f.processedErr
	}
	return f.MemoryRegistry.ImageProcessed(ctx, imageID)
}

func (f *faultyRegistry) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records
}

type recordingDispatcher struct {
	mu     sync.Mutex
	sent   []alert.Alert
	failOn map[string]bool
}

func (r *recordingDispatcher) Send(_ context.Context, a alert.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, a)
	if r.failOn[a.Plate] {
		return alert.ErrDispatch
	}
	return nil
}

func (r *recordingDispatcher) plates() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, a := range r.sent {
		out = append(out, a.Plate)
	}
	return out
}
