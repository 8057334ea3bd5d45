package models

import (
	"time"

	"gorm.io/datatypes"
)

// Service is a multi-step chat product composed of ordered workflow steps.
type Service struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Name        string `gorm:"type:varchar(255);not null"`             // Display name.
	Slug        string `gorm:"type:varchar(100);not null;uniqueIndex"` // URL-safe identifier.
	Description string `gorm:"type:text"`                              // Optional description.
	IsActive    bool   `gorm:"not null"`                               // Inactive services cannot start chats.

	Steps []WorkflowStep `gorm:"foreignKey:ServiceID"` // Ordered steps.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// WorkflowStep is one ordered stage of a service.
type WorkflowStep struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ServiceID uint64 `gorm:"not null;uniqueIndex:idx_step_service_order"`                   // Owning service.
	Order     int    `gorm:"column:step_order;not null;uniqueIndex:idx_step_service_order"` // 1-based position.

	Name                 string            `gorm:"type:varchar(255)"`         // Step label.
	ModelType            string            `gorm:"type:varchar(20);not null"` // text, image, audio or video.
	ProviderID           uint64            `gorm:"not null;index"`            // Default provider.
	RequiresConfirmation bool              `gorm:"not null;default:false"`    // User must confirm before advancing.
	PromptTemplate       string            `gorm:"type:text"`                 // Optional template with {input}.
	Config               datatypes.JSONMap // Provider parameters merged into pricing parameters.

	Provider Provider `gorm:"foreignKey:ProviderID"` // Provider relation.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
