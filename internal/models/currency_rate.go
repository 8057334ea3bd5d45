package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyRate converts provider-native units into a currency, with a markup and an optional validity window.
type CurrencyRate struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ProviderID *uint64 `gorm:"index"` // Nil for the global rate.

	FromUnit         string          `gorm:"type:varchar(50);not null"`             // Native unit.
	ToCurrency       string          `gorm:"type:varchar(10);not null;index"`       // ISO currency code.
	Rate             decimal.Decimal `gorm:"type:decimal(20,10);not null"`          // Currency per native unit, > 0.
	MarkupPercentage decimal.Decimal `gorm:"type:decimal(10,4);not null;default:0"` // Surcharge, >= 0.
	IsActive         bool            `gorm:"not null"`                              // Inactive rates are ignored.

	ValidFrom  *time.Time // Inclusive start, nil means unbounded.
	ValidUntil *time.Time // Exclusive end, nil means unbounded.

	Provider *Provider `gorm:"foreignKey:ProviderID"` // Provider relation.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// IsValidAt reports whether the rate is active and inside its validity window at t.
func (r *CurrencyRate) IsValidAt(t time.Time) bool {
	if r == nil || !r.IsActive {
		return false
	}
	if r.ValidFrom != nil && r.ValidFrom.After(t) {
		return false
	}
	if r.ValidUntil != nil && !r.ValidUntil.After(t) {
		return false
	}
	return true
}
