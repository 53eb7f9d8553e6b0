package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"permit-enforcement/internal/domain/permit"
)

// MemoryRegistry keeps permits and detections in process memory. It backs the
// "memory" storage driver used for local runs and tests; contents are lost on exit.
type MemoryRegistry struct {
	mu         sync.RWMutex
	permits    []permit.Permit
	detections []permit.Detection
	nextID     int64
	now        func() time.Time
}

func NewMemoryRegistry(now func() time.Time) *MemoryRegistry {
	if now == nil {
		now = time.Now
	}
	return &MemoryRegistry{now: now}
}

func (m *MemoryRegistry) WithSession(ctx context.Context, fn func(permit.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(m)
}

func (m *MemoryRegistry) Lookup(_ context.Context, plate string) (*permit.Permit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.latestLocked(plate); ok {
		return &p, nil
	}
	return nil, nil
}

func (m *MemoryRegistry) RecordDetection(_ context.Context, d *permit.Detection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	d.ID = m.nextID
	m.detections = append(m.detections, *d)
	return nil
}

func (m *MemoryRegistry) InsertPermit(_ context.Context, p *permit.Permit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if current, ok := m.latestLocked(p.Plate); ok && current.IsValidAt(now) {
		return permit.ErrConflict
	}

	m.nextID++
	p.ID = m.nextID
	p.CreatedAt = now
	m.permits = append(m.permits, *p)
	return nil
}

func (m *MemoryRegistry) ImageProcessed(_ context.Context, imageID uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.detections {
		if d.ImageID == imageID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryRegistry) FindDetections(_ context.Context, filter permit.DetectionFilter) ([]permit.Detection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]permit.Detection, 0)
	for i := len(m.detections) - 1; i >= 0; i-- {
		d := m.detections[i]
		if filter.Plate != nil && d.Plate != *filter.Plate {
			continue
		}
		if filter.From != nil && d.DetectedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && d.DetectedAt.After(*filter.To) {
			continue
		}
		result = append(result, d)
	}
	slices.SortStableFunc(result, func(a, b permit.Detection) int {
		return b.DetectedAt.Compare(a.DetectedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []permit.Detection{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 {
		result = result[:min(filter.Limit, maxPageSize, len(result))]
	}
	return result, nil
}

func (m *MemoryRegistry) FindPermits(_ context.Context, plate string) ([]permit.Permit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]permit.Permit, 0)
	for i := len(m.permits) - 1; i >= 0; i-- {
		if m.permits[i].Plate == plate {
			result = append(result, m.permits[i])
		}
	}
	return result, nil
}

func (m *MemoryRegistry) latestLocked(plate string) (permit.Permit, bool) {
	for i := len(m.permits) - 1; i >= 0; i-- {
		if m.permits[i].Plate == plate {
			return m.permits[i], true
		}
	}
	return permit.Permit{}, false
}
