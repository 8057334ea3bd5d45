package models

import (
	"time"

	"gorm.io/datatypes"
)

// ChatStatus enumerates chat lifecycle states.
type ChatStatus string

// Chat lifecycle states.
const (
	ChatStatusActive    ChatStatus = "active"
	ChatStatusCompleted ChatStatus = "completed"
	ChatStatusArchived  ChatStatus = "archived"
	ChatStatusFailed    ChatStatus = "failed"
)

// MessageRole enumerates message authors.
type MessageRole string

// Message roles.
const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// MessageStatus enumerates message processing states.
type MessageStatus string

// Message states.
const (
	MessageStatusPending    MessageStatus = "pending"
	MessageStatusProcessing MessageStatus = "processing"
	MessageStatusCompleted  MessageStatus = "completed"
	MessageStatusFailed     MessageStatus = "failed"
)

// Chat is a user's session against a service.
type Chat struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID           uint64            `gorm:"not null;index"`                             // Owning user.
	ServiceID        uint64            `gorm:"not null;index"`                             // Service being run.
	Title            string            `gorm:"type:varchar(255)"`                          // Optional title.
	Status           ChatStatus        `gorm:"type:varchar(20);not null;default:'active'"` // Lifecycle state.
	CurrentStepOrder int               `gorm:"not null;default:1"`                         // 1-based step pointer.
	Metadata         datatypes.JSONMap // Free-form metadata.

	Service Service `gorm:"foreignKey:ServiceID"` // Service relation.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Message is an append-only entry of a chat.
type Message struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ChatID         uint64            `gorm:"not null;index"`            // Owning chat.
	WorkflowStepID *uint64           `gorm:"index"`                     // Step that produced the message.
	Role           MessageRole       `gorm:"type:varchar(20);not null"` // user, assistant or system.
	Content        string            `gorm:"type:text"`                 // Message body.
	Status         MessageStatus     `gorm:"type:varchar(20);not null"` // Processing state.
	CreditsSpent   int64             `gorm:"not null;default:0"`        // Credits charged for this message.
	Error          string            `gorm:"type:text"`                 // Failure reason.
	Metadata       datatypes.JSONMap // Provider and model identifiers.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
