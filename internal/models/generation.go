package models

import (
	"time"

	"gorm.io/datatypes"
)

// GenerationKind enumerates single-shot generatable kinds.
type GenerationKind string

// Generation kinds.
const (
	GenerationKindText        GenerationKind = "text"
	GenerationKindImage       GenerationKind = "image"
	GenerationKindInfographic GenerationKind = "infographic"
)

// GenerationStatus enumerates generation states.
type GenerationStatus string

// Generation states.
const (
	GenerationStatusPending   GenerationStatus = "pending"
	GenerationStatusCompleted GenerationStatus = "completed"
	GenerationStatusFailed    GenerationStatus = "failed"
	GenerationStatusRefunded  GenerationStatus = "refunded"
)

// Generation is a single-shot generation request charged outside of a chat.
type Generation struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	RequestID    string            `gorm:"type:varchar(64);not null;uniqueIndex"` // Client-visible id.
	UserID       uint64            `gorm:"not null;index"`                        // Owning user.
	ProviderID   uint64            `gorm:"not null;index"`                        // Provider invoked.
	Kind         GenerationKind    `gorm:"type:varchar(20);not null"`             // Generatable kind.
	Prompt       string            `gorm:"type:text"`                             // User prompt.
	Parameters   datatypes.JSONMap // Request parameters.
	Status       GenerationStatus  `gorm:"type:varchar(20);not null"` // Processing state.
	CreditsSpent int64             `gorm:"not null;default:0"`        // Net credits charged.
	Result       datatypes.JSONMap // Encoded output.
	Error        string            `gorm:"type:text"` // Failure reason.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
