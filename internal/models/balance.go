package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrTransactionImmutable is returned when a balance transaction is updated or deleted.
var ErrTransactionImmutable = errors.New("balance transactions are append-only")

// TransactionType enumerates ledger transaction kinds.
type TransactionType string

// Ledger transaction kinds.
const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
	TransactionRefund TransactionType = "refund"
	TransactionBonus  TransactionType = "bonus"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionCredit, TransactionDebit, TransactionRefund, TransactionBonus:
		return true
	default:
		return false
	}
}

// Balance holds a user's credits.
type Balance struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID          uint64 `gorm:"not null;uniqueIndex"` // Owning user.
	Credits         int64  `gorm:"not null;default:0"`   // Total credits.
	ReservedCredits int64  `gorm:"not null;default:0"`   // Credits earmarked for pending work.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// AvailableCredits returns credits minus reserved credits.
func (b *Balance) AvailableCredits() int64 {
	if b == nil {
		return 0
	}
	return b.Credits - b.ReservedCredits
}

// BalanceTransaction is the immutable audit row written with every balance mutation.
type BalanceTransaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID    uint64          `gorm:"not null;index"`            // Owning user.
	BalanceID uint64          `gorm:"not null;index"`            // Mutated balance.
	Type      TransactionType `gorm:"type:varchar(20);not null"` // credit, debit, refund or bonus.

	Amount        int64 `gorm:"not null"` // Positive amount moved.
	BalanceBefore int64 `gorm:"not null"` // Credits before the mutation.
	BalanceAfter  int64 `gorm:"not null"` // Credits after the mutation.

	Description   string  `gorm:"type:text"`                                       // Free-text description.
	ReferenceType *string `gorm:"type:varchar(50);index:idx_balance_tx_reference"` // Causing entity kind.
	ReferenceID   *uint64 `gorm:"index:idx_balance_tx_reference"`                  // Causing entity id.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// BeforeUpdate rejects updates.
func (t *BalanceTransaction) BeforeUpdate(*gorm.DB) error {
	return ErrTransactionImmutable
}

// BeforeDelete rejects deletes.
func (t *BalanceTransaction) BeforeDelete(*gorm.DB) error {
	return ErrTransactionImmutable
}
