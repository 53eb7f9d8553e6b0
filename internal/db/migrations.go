package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS detected_plates (
		id              BIGSERIAL PRIMARY KEY,
		license_plate   TEXT NOT NULL,
		detection_time  TIMESTAMPTZ NOT NULL,
		image_id        UUID,
		image_name      TEXT,
		metadata        JSONB,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_detected_plates_plate ON detected_plates(license_plate);`,
	`CREATE INDEX IF NOT EXISTS idx_detected_plates_detection_time ON detected_plates(detection_time);`,
	`CREATE INDEX IF NOT EXISTS idx_detected_plates_image_id ON detected_plates(image_id);`,
	`CREATE TABLE IF NOT EXISTS parking_permits (
		id               BIGSERIAL PRIMARY KEY,
		license_plate    TEXT NOT NULL,
		expiration_time  TIMESTAMPTZ NOT NULL,
		permit_status    TEXT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_parking_permits_plate_id ON parking_permits(license_plate, id DESC);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
