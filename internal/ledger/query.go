package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/creditstudio/CreditStudio/internal/models"
	"gorm.io/gorm"
)

// Balance returns the user's balance row.
func (l *Ledger) Balance(ctx context.Context, userID uint64) (*models.Balance, error) {
	var bal models.Balance
	if errFind := l.db.WithContext(ctx).Where("user_id = ?", userID).First(&bal).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, fmt.Errorf("ledger: load balance: %w", errFind)
	}
	return &bal, nil
}

// Available returns the user's available credits, zero when no balance exists.
func (l *Ledger) Available(ctx context.Context, userID uint64) (int64, error) {
	bal, errBalance := l.Balance(ctx, userID)
	if errors.Is(errBalance, ErrBalanceNotFound) {
		return 0, nil
	}
	if errBalance != nil {
		return 0, errBalance
	}
	return bal.AvailableCredits(), nil
}

// EnsureBalance returns the user's balance, creating an empty one when missing.
func (l *Ledger) EnsureBalance(ctx context.Context, userID uint64) (*models.Balance, error) {
	if errEnsure := ensureRow(l.db.WithContext(ctx), userID); errEnsure != nil {
		return nil, fmt.Errorf("ledger: ensure balance: %w", errEnsure)
	}
	return l.Balance(ctx, userID)
}

// Transactions returns a page of the user's transactions, newest first, and the total count.
func (l *Ledger) Transactions(ctx context.Context, userID uint64, limit, offset int) ([]models.BalanceTransaction, int64, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	base := func() *gorm.DB {
		return l.db.WithContext(ctx).Model(&models.BalanceTransaction{}).Where("user_id = ?", userID)
	}
	var total int64
	if errCount := base().Count(&total).Error; errCount != nil {
		return nil, 0, fmt.Errorf("ledger: count transactions: %w", errCount)
	}
	var rows []models.BalanceTransaction
	if errFind := base().Order("id DESC").Limit(limit).Offset(offset).Find(&rows).Error; errFind != nil {
		return nil, 0, fmt.Errorf("ledger: list transactions: %w", errFind)
	}
	return rows, total, nil
}

// LockAvailable returns available credits and, when called through WithTx, keeps the balance
// row locked until the surrounding transaction ends.
func (l *Ledger) LockAvailable(ctx context.Context, userID uint64) (int64, error) {
	bal, errLock := lockBalance(l.db.WithContext(ctx), userID)
	if errors.Is(errLock, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if errLock != nil {
		return 0, fmt.Errorf("ledger: lock balance: %w", errLock)
	}
	return bal.AvailableCredits(), nil
}
