package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"permit-enforcement/internal/domain/permit"
)

const (
	maxPageSize = 100

	advisoryLockSQL = "SELECT pg_advisory_xact_lock(hashtext(?))"
)

type PermitRepository struct {
	db *gorm.DB
}

func NewPermitRepository(db *gorm.DB) *PermitRepository {
	return &PermitRepository{db: db}
}

type DetectedPlate struct {
	ID            int64     `gorm:"primaryKey"`
	LicensePlate  string    `gorm:"not null"`
	DetectionTime time.Time `gorm:"not null"`
	ImageID       *uuid.UUID
	ImageName     *string
	Metadata      datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt     time.Time
}

type ParkingPermit struct {
	ID             int64     `gorm:"primaryKey"`
	LicensePlate   string    `gorm:"not null"`
	ExpirationTime time.Time `gorm:"not null"`
	PermitStatus   string    `gorm:"not null"`
	CreatedAt      time.Time
}

// WithSession pins a single pooled connection for fn and returns it to the
// pool afterwards. The connection serves one statement at a time, so the Store
// handed to fn serializes calls from concurrent goroutines.
func (r *PermitRepository) WithSession(ctx context.Context, fn func(permit.Store) error) error {
	return r.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		return fn(&serialStore{store: &PermitRepository{db: conn}})
	})
}

// serialStore guards a Store bound to one connection.
type serialStore struct {
	mu    sync.Mutex
	store permit.Store
}

func (s *serialStore) Lookup(ctx context.Context, plate string) (*permit.Permit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Lookup(ctx, plate)
}

func (s *serialStore) RecordDetection(ctx context.Context, d *permit.Detection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.RecordDetection(ctx, d)
}

func (s *serialStore) InsertPermit(ctx context.Context, p *permit.Permit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.InsertPermit(ctx, p)
}

func latestPermitQuery(db *gorm.DB, plate string) *gorm.DB {
	return db.Where("license_plate = ?", plate).Order("id DESC")
}

// Lookup returns the most recently inserted permit for plate.
func (r *PermitRepository) Lookup(ctx context.Context, plate string) (*permit.Permit, error) {
	var row ParkingPermit
	err := latestPermitQuery(r.db.WithContext(ctx), plate).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := toPermit(row)
	return &p, nil
}

func (r *PermitRepository) RecordDetection(ctx context.Context, d *permit.Detection) error {
	row := toDetectedPlate(d)
	row.CreatedAt = time.Now()
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	d.ID = row.ID
	return nil
}

// ImageProcessed reports whether any detection was recorded for imageID.
func (r *PermitRepository) ImageProcessed(ctx context.Context, imageID uuid.UUID) (bool, error) {
	var seen bool
	err := r.db.WithContext(ctx).
		Raw("SELECT EXISTS (SELECT 1 FROM detected_plates WHERE image_id = ?)", imageID).
		Scan(&seen).Error
	return seen, err
}

// InsertPermit appends a permit row. The conflict check and insert share one
// transaction holding a per-plate advisory lock, so concurrent submissions for
// the same plate cannot both succeed.
func (r *PermitRepository) InsertPermit(ctx context.Context, p *permit.Permit) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(advisoryLockSQL, p.Plate).Error; err != nil {
			return err
		}

		var existing ParkingPermit
		err := latestPermitQuery(tx, p.Plate).First(&existing).Error
		if err := checkConflict(existing, err, time.Now()); err != nil {
			return err
		}

		row := ParkingPermit{
			LicensePlate:   p.Plate,
			ExpirationTime: p.ExpiresAt,
			PermitStatus:   string(p.Status),
			CreatedAt:      time.Now(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		p.ID = row.ID
		p.CreatedAt = row.CreatedAt
		return nil
	})
}

// checkConflict interprets the latest-permit read made under the plate lock.
func checkConflict(latest ParkingPermit, readErr error, now time.Time) error {
	switch {
	case errors.Is(readErr, gorm.ErrRecordNotFound):
		return nil
	case readErr != nil:
		return readErr
	}
	if current := toPermit(latest); current.IsValidAt(now) {
		return permit.ErrConflict
	}
	return nil
}

func detectionsQuery(db *gorm.DB, filter permit.DetectionFilter) *gorm.DB {
	query := db.Model(&DetectedPlate{})

	if filter.Plate != nil {
		query = query.Where("license_plate = ?", *filter.Plate)
	}
	if filter.From != nil {
		query = query.Where("detection_time >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("detection_time <= ?", *filter.To)
	}

	query = query.Order("detection_time DESC").Order("id DESC")

	if filter.Limit > 0 {
		query = query.Limit(min(filter.Limit, maxPageSize))
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	return query
}

func (r *PermitRepository) FindDetections(ctx context.Context, filter permit.DetectionFilter) ([]permit.Detection, error) {
	var rows []DetectedPlate
	if err := detectionsQuery(r.db.WithContext(ctx), filter).Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]permit.Detection, 0, len(rows))
	for _, row := range rows {
		result = append(result, toDetection(row))
	}
	return result, nil
}

func (r *PermitRepository) FindPermits(ctx context.Context, plate string) ([]permit.Permit, error) {
	var rows []ParkingPermit
	err := latestPermitQuery(r.db.WithContext(ctx), plate).Find(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]permit.Permit, 0, len(rows))
	for _, row := range rows {
		result = append(result, toPermit(row))
	}
	return result, nil
}

func toPermit(row ParkingPermit) permit.Permit {
	return permit.Permit{
		ID:        row.ID,
		Plate:     row.LicensePlate,
		Status:    permit.Status(row.PermitStatus),
		ExpiresAt: row.ExpirationTime,
		CreatedAt: row.CreatedAt,
	}
}

func toDetectedPlate(d *permit.Detection) DetectedPlate {
	row := DetectedPlate{
		LicensePlate:  d.Plate,
		DetectionTime: d.DetectedAt,
	}
	if d.ImageID != uuid.Nil {
		id := d.ImageID
		row.ImageID = &id
	}
	if d.ImageName != "" {
		name := d.ImageName
		row.ImageName = &name
	}
	meta := datatypes.JSONMap{}
	if d.ImageSize > 0 {
		meta["image_size"] = d.ImageSize
	}
	if d.Source != "" {
		meta["source"] = d.Source
	}
	if len(meta) > 0 {
		row.Metadata = meta
	}
	return row
}

func toDetection(row DetectedPlate) permit.Detection {
	d := permit.Detection{
		ID:         row.ID,
		Plate:      row.LicensePlate,
		DetectedAt: row.DetectionTime,
	}
	if row.ImageID != nil {
		d.ImageID = *row.ImageID
	}
	if row.ImageName != nil {
		d.ImageName = *row.ImageName
	}
	if source, ok := row.Metadata["source"].(string); ok {
		d.Source = source
	}
	switch size := row.Metadata["image_size"].(type) {
	case float64:
		d.ImageSize = int64(size)
	case int64:
		d.ImageSize = size
	}
	return d
}
