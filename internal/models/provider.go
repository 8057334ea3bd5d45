package models

import "time"

// Provider identifies an AI backend that pricing entries, currency rates and workflow steps reference.
type Provider struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name        string `gorm:"type:varchar(100);not null;uniqueIndex"` // Unique provider name.
	DisplayName string `gorm:"type:varchar(255)"`                      // Human-readable label.
	IsActive    bool   `gorm:"not null"`                               // Inactive providers reject price resolution.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
