package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PricingEntry is the base cost, in the provider's native unit, of a service type under a set of parameter conditions.
type PricingEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ProviderID  uint64 `gorm:"not null;index:idx_pricing_provider_service"`                  // Owning provider.
	ServiceType string `gorm:"type:varchar(50);not null;index:idx_pricing_provider_service"` // Service type tag (text, image, ...).

	// Conditions maps a parameter name to a required scalar or a list of acceptable values.
	Conditions datatypes.JSONMap

	TokenCost decimal.Decimal `gorm:"type:decimal(20,6);not null"` // Base cost in native units.
	Unit      string          `gorm:"type:varchar(50);default:''"` // Native unit label (tokens, requests).
	IsDefault bool            `gorm:"not null;default:false"`      // Fallback entry for the group.
	IsActive  bool            `gorm:"not null"`                    // Inactive entries are never matched.
	SortOrder int             `gorm:"not null;default:0"`          // Lower sorts first.

	Provider Provider `gorm:"foreignKey:ProviderID"` // Provider relation.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
