package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/creditstudio/CreditStudio/internal/metrics"
	"github.com/creditstudio/CreditStudio/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger errors. Insufficient funds is reported as a false result, never as an error.
var (
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrInvalidTransactionType indicates Add was called with a type that does not credit.
	ErrInvalidTransactionType = errors.New("ledger: invalid transaction type")
	// ErrBalanceNotFound indicates the user has no balance row.
	ErrBalanceNotFound = errors.New("ledger: balance not found")
)

// Reference kinds attached to transactions.
const (
	ReferenceChatMessage = "chat_message"
	ReferenceGeneration  = "generation"
)

// Reference points a transaction at the entity that caused it.
type Reference struct {
	Type string
	ID   uint64
}

// Ledger applies atomic balance mutations, each paired with one BalanceTransaction.
// Mutations lock the balance row for the duration of their transaction.
type Ledger struct {
	db      *gorm.DB
	metrics *metrics.Metrics
}

// New constructs a Ledger over db.
func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db, metrics: metrics.Get()}
}

// WithTx returns a Ledger whose operations join tx. Each operation still runs in its own
// savepoint, so a rejected or failed operation does not poison tx.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	return &Ledger{db: tx, metrics: l.metrics}
}

// Deduct removes amount from the user's credits and writes a debit transaction. It returns
// false without mutating anything when the balance is missing or available credits are short.
func (l *Ledger) Deduct(ctx context.Context, userID uint64, amount int64, description string, ref *Reference) (bool, error) {
	return l.mutate(ctx, "deduct", userID, amount, false, func(tx *gorm.DB, bal *models.Balance) (bool, error) {
		if bal.AvailableCredits() < amount {
			return false, nil
		}
		res := tx.Model(&models.Balance{}).
			Where("id = ? AND credits - reserved_credits >= ?", bal.ID, amount).
			Update("credits", gorm.Expr("credits - ?", amount))
		if res.Error != nil {
			return false, res.Error
		}
		if res.RowsAffected == 0 {
			return false, nil
		}
		return true, record(tx, bal, models.TransactionDebit, amount, bal.Credits-amount, description, ref)
	})
}

// Add credits amount to the user, creating the balance row when needed. txType must be
// credit, bonus or refund.
func (l *Ledger) Add(ctx context.Context, userID uint64, amount int64, description string, txType models.TransactionType) (bool, error) {
	if txType == "" {
		txType = models.TransactionCredit
	}
	if !txType.Valid() || txType == models.TransactionDebit {
		return false, fmt.Errorf("%w: %q", ErrInvalidTransactionType, txType)
	}
	return l.credit(ctx, "add", userID, amount, description, txType, nil)
}

// Refund credits amount back to the user with a refund transaction, reversing a prior Deduct.
func (l *Ledger) Refund(ctx context.Context, userID uint64, amount int64, description string, ref *Reference) (bool, error) {
	return l.credit(ctx, "refund", userID, amount, description, models.TransactionRefund, ref)
}

func (l *Ledger) credit(ctx context.Context, op string, userID uint64, amount int64, description string, txType models.TransactionType, ref *Reference) (bool, error) {
	return l.mutate(ctx, op, userID, amount, true, func(tx *gorm.DB, bal *models.Balance) (bool, error) {
		if errUpdate := tx.Model(&models.Balance{}).
			Where("id = ?", bal.ID).
			Update("credits", gorm.Expr("credits + ?", amount)).Error; errUpdate != nil {
			return false, errUpdate
		}
		return true, record(tx, bal, txType, amount, bal.Credits+amount, description, ref)
	})
}

// Reserve earmarks amount of the available credits. Total credits are unchanged and no
// transaction is written.
func (l *Ledger) Reserve(ctx context.Context, userID uint64, amount int64) (bool, error) {
	return l.mutate(ctx, "reserve", userID, amount, false, func(tx *gorm.DB, bal *models.Balance) (bool, error) {
		if bal.AvailableCredits() < amount {
			return false, nil
		}
		res := tx.Model(&models.Balance{}).
			Where("id = ? AND credits - reserved_credits >= ?", bal.ID, amount).
			Update("reserved_credits", gorm.Expr("reserved_credits + ?", amount))
		return res.RowsAffected > 0, res.Error
	})
}

// Release returns amount of reserved credits to availability.
func (l *Ledger) Release(ctx context.Context, userID uint64, amount int64) (bool, error) {
	return l.mutate(ctx, "release", userID, amount, false, func(tx *gorm.DB, bal *models.Balance) (bool, error) {
		if bal.ReservedCredits < amount {
			return false, nil
		}
		res := tx.Model(&models.Balance{}).
			Where("id = ? AND reserved_credits >= ?", bal.ID, amount).
			Update("reserved_credits", gorm.Expr("reserved_credits - ?", amount))
		return res.RowsAffected > 0, res.Error
	})
}

// mutate runs fn against the locked balance row inside a transaction. A false result from fn
// rolls the transaction back.
func (l *Ledger) mutate(ctx context.Context, op string, userID uint64, amount int64, create bool, fn func(tx *gorm.DB, bal *models.Balance) (bool, error)) (bool, error) {
	if amount <= 0 {
		l.metrics.LedgerOperationTotal.WithLabelValues(op, "error").Inc()
		return false, ErrInvalidAmount
	}

	errRejected := errors.New("rejected")
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if create {
			if errEnsure := ensureRow(tx, userID); errEnsure != nil {
				return errEnsure
			}
		}
		bal, errLock := lockBalance(tx, userID)
		if errors.Is(errLock, gorm.ErrRecordNotFound) {
			return errRejected
		}
		if errLock != nil {
			return errLock
		}
		applied, errApply := fn(tx, bal)
		if errApply != nil {
			return errApply
		}
		if !applied {
			return errRejected
		}
		return nil
	})

	switch {
	case errTx == nil:
		l.metrics.LedgerOperationTotal.WithLabelValues(op, "ok").Inc()
		return true, nil
	case errors.Is(errTx, errRejected):
		l.metrics.LedgerOperationTotal.WithLabelValues(op, "rejected").Inc()
		log.WithFields(log.Fields{"op": op, "user_id": userID, "amount": amount}).Debug("ledger operation rejected")
		return false, nil
	default:
		l.metrics.LedgerOperationTotal.WithLabelValues(op, "error").Inc()
		log.WithError(errTx).WithFields(log.Fields{"op": op, "user_id": userID, "amount": amount}).Warn("ledger operation failed")
		return false, fmt.Errorf("ledger: %s: %w", op, errTx)
	}
}

func lockBalance(tx *gorm.DB, userID uint64) (*models.Balance, error) {
	var bal models.Balance
	if errFind := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&bal).Error; errFind != nil {
		return nil, errFind
	}
	return &bal, nil
}

func ensureRow(tx *gorm.DB, userID uint64) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&models.Balance{UserID: userID}).Error
}

func record(tx *gorm.DB, bal *models.Balance, txType models.TransactionType, amount, after int64, description string, ref *Reference) error {
	row := models.BalanceTransaction{
		UserID:        bal.UserID,
		BalanceID:     bal.ID,
		Type:          txType,
		Amount:        amount,
		BalanceBefore: bal.Credits,
		BalanceAfter:  after,
		Description:   description,
	}
	if ref != nil && ref.Type != "" {
		refType := ref.Type
		refID := ref.ID
		row.ReferenceType = &refType
		row.ReferenceID = &refID
	}
	return tx.Create(&row).Error
}
