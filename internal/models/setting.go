package models

import (
	"time"
)

// Setting stores a key/value configuration entry in the database.
// Value is JSON kept in a text column so SQLite never coerces numbers.
type Setting struct {
	Key       string    `gorm:"type:varchar(255);primaryKey"` // Configuration key.
	Value     string    `gorm:"type:text;not null"`           // JSON-encoded value.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`      // Last update timestamp.
}
