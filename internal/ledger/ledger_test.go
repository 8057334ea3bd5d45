package ledger

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/creditstudio/CreditStudio/internal/db"
	"github.com/creditstudio/CreditStudio/internal/models"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := db.Open(":memory:")
	require.NoError(t, errOpen)
	require.NoError(t, db.Migrate(conn))
	return conn
}

func seedBalance(t *testing.T, conn *gorm.DB, userID uint64, credits, reserved int64) {
	t.Helper()
	require.NoError(t, conn.Create(&models.Balance{UserID: userID, Credits: credits, ReservedCredits: reserved}).Error)
}

func countTransactions(t *testing.T, conn *gorm.DB, userID uint64) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&models.BalanceTransaction{}).Where("user_id = ?", userID).Count(&n).Error)
	return n
}

func TestDeductInsufficientFundsLeavesBalanceUntouched(t *testing.T) {
	conn := openTestDB(t)
	seedBalance(t, conn, 1, 10, 0)
	l := New(conn)

	ok, errDeduct := l.Deduct(context.Background(), 1, 15, "too much", nil)
	require.NoError(t, errDeduct)
	require.False(t, ok)

	bal, errBalance := l.Balance(context.Background(), 1)
	require.NoError(t, errBalance)
	require.Equal(t, int64(10), bal.Credits)
	require.Equal(t, int64(0), bal.ReservedCredits)
	require.Zero(t, countTransactions(t, conn, 1))
}

func TestDeductMissingBalanceReturnsFalse(t *testing.T) {
	conn := openTestDB(t)
	ok, errDeduct := New(conn).Deduct(context.Background(), 42, 1, "none", nil)
	require.NoError(t, errDeduct)
	require.False(t, ok)

	var n int64
	require.NoError(t, conn.Model(&models.Balance{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestDeductRejectsNonPositiveAmount(t *testing.T) {
	conn := openTestDB(t)
	seedBalance(t, conn, 1, 10, 0)
	_, errDeduct := New(conn).Deduct(context.Background(), 1, 0, "zero", nil)
	require.ErrorIs(t, errDeduct, ErrInvalidAmount)
}

func TestDeductRefundRoundTripChainsSnapshots(t *testing.T) {
	conn := openTestDB(t)
	seedBalance(t, conn, 7, 50, 0)
	l := New(conn)
	ctx := context.Background()
	ref := &Reference{Type: ReferenceGeneration, ID: 99}

	ok, errDeduct := l.Deduct(ctx, 7, 5, "generation", ref)
	require.NoError(t, errDeduct)
	require.True(t, ok)
	ok, errRefund := l.Refund(ctx, 7, 5, "generation failed", ref)
	require.NoError(t, errRefund)
	require.True(t, ok)

	bal, errBalance := l.Balance(ctx, 7)
	require.NoError(t, errBalance)
	require.Equal(t, int64(50), bal.Credits)

	rows, total, errList := l.Transactions(ctx, 7, 10, 0)
	require.NoError(t, errList)
	require.Equal(t, int64(2), total)
	refund, debit := rows[0], rows[1]
	require.Equal(t, models.TransactionDebit, debit.Type)
	require.Equal(t, models.TransactionRefund, refund.Type)
	require.Equal(t, int64(50), debit.BalanceBefore)
	require.Equal(t, int64(45), debit.BalanceAfter)
	require.Equal(t, debit.BalanceAfter, refund.BalanceBefore)
	require.Equal(t, int64(50), refund.BalanceAfter)
	require.NotNil(t, debit.ReferenceType)
	require.Equal(t, ReferenceGeneration, *debit.ReferenceType)
	require.Equal(t, uint64(99), *refund.ReferenceID)
}

func TestAddCreatesBalanceAndValidatesType(t *testing.T) {
	conn := openTestDB(t)
	l := New(conn)
	ctx := context.Background()

	ok, errAdd := l.Add(ctx, 3, 100, "top up", models.TransactionCredit)
	require.NoError(t, errAdd)
	require.True(t, ok)
	ok, errAdd = l.Add(ctx, 3, 20, "welcome", models.TransactionBonus)
	require.NoError(t, errAdd)
	require.True(t, ok)

	available, errAvailable := l.Available(ctx, 3)
	require.NoError(t, errAvailable)
	require.Equal(t, int64(120), available)

	_, errAdd = l.Add(ctx, 3, 5, "sneaky", models.TransactionDebit)
	require.ErrorIs(t, errAdd, ErrInvalidTransactionType)
	_, errAdd = l.Add(ctx, 3, 5, "unknown", models.TransactionType("gift"))
	require.ErrorIs(t, errAdd, ErrInvalidTransactionType)

	rows, _, errList := l.Transactions(ctx, 3, 10, 0)
	require.NoError(t, errList)
	require.Len(t, rows, 2)
	require.Equal(t, models.TransactionBonus, rows[0].Type)
	require.Equal(t, int64(100), rows[0].BalanceBefore)
	require.Equal(t, int64(0), rows[1].BalanceBefore)
}

func TestReserveAndReleaseOnlyMoveAvailability(t *testing.T) {
	conn := openTestDB(t)
	seedBalance(t, conn, 5, 30, 0)
	l := New(conn)
	ctx := context.Background()

	ok, errReserve := l.Reserve(ctx, 5, 20)
	require.NoError(t, errReserve)
	require.True(t, ok)

	ok, errReserve = l.Reserve(ctx, 5, 11)
	require.NoError(t, errReserve)
	require.False(t, ok)

	ok, errDeduct := l.Deduct(ctx, 5, 11, "over available", nil)
	require.NoError(t, errDeduct)
	require.False(t, ok)

	bal, errBalance := l.Balance(ctx, 5)
	require.NoError(t, errBalance)
	require.Equal(t, int64(30), bal.Credits)
	require.Equal(t, int64(20), bal.ReservedCredits)
	require.Equal(t, int64(10), bal.AvailableCredits())

	ok, errRelease := l.Release(ctx, 5, 25)
	require.NoError(t, errRelease)
	require.False(t, ok)
	ok, errRelease = l.Release(ctx, 5, 20)
	require.NoError(t, errRelease)
	require.True(t, ok)

	available, errAvailable := l.Available(ctx, 5)
	require.NoError(t, errAvailable)
	require.Equal(t, int64(30), available)
	require.Zero(t, countTransactions(t, conn, 5))
}

func TestConcurrentDeductsNeverOverdraw(t *testing.T) {
	conn := openTestDB(t)
	seedBalance(t, conn, 9, 100, 0)
	l := New(conn)

	var succeeded atomic.Int64
	var g errgroup.Group
	for i := 0; i < 25; i++ {
		g.Go(func() error {
			ok, errDeduct := l.Deduct(context.Background(), 9, 10, "parallel", nil)
			if ok {
				succeeded.Add(1)
			}
			return errDeduct
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int64(10), succeeded.Load())

	bal, errBalance := l.Balance(context.Background(), 9)
	require.NoError(t, errBalance)
	require.Equal(t, int64(0), bal.Credits)

	var rows []models.BalanceTransaction
	require.NoError(t, conn.Where("user_id = ?", 9).Order("id ASC").Find(&rows).Error)
	require.Len(t, rows, 10)
	for i := 1; i < len(rows); i++ {
		require.Equal(t, rows[i-1].BalanceAfter, rows[i].BalanceBefore, "snapshot chain broken at %d", i)
	}
}

func TestWithTxJoinsOuterTransaction(t *testing.T) {
	conn := openTestDB(t)
	seedBalance(t, conn, 4, 40, 0)
	l := New(conn)
	errBoom := errors.New("boom")

	errTx := conn.Transaction(func(tx *gorm.DB) error {
		ok, errDeduct := l.WithTx(tx).Deduct(context.Background(), 4, 15, "inside", nil)
		require.NoError(t, errDeduct)
		require.True(t, ok)

		ok, errDeduct = l.WithTx(tx).Deduct(context.Background(), 4, 100, "rejected", nil)
		require.NoError(t, errDeduct)
		require.False(t, ok)

		available, errAvailable := l.WithTx(tx).Available(context.Background(), 4)
		require.NoError(t, errAvailable)
		require.Equal(t, int64(25), available)
		return errBoom
	})
	require.ErrorIs(t, errTx, errBoom)

	bal, errBalance := l.Balance(context.Background(), 4)
	require.NoError(t, errBalance)
	require.Equal(t, int64(40), bal.Credits)
	require.Zero(t, countTransactions(t, conn, 4))
}

func TestTransactionsAreImmutable(t *testing.T) {
	conn := openTestDB(t)
	l := New(conn)
	ok, errAdd := l.Add(context.Background(), 2, 10, "seed", models.TransactionCredit)
	require.NoError(t, errAdd)
	require.True(t, ok)

	var row models.BalanceTransaction
	require.NoError(t, conn.Where("user_id = ?", 2).First(&row).Error)

	errUpdate := conn.Model(&row).Update("amount", 1000).Error
	require.ErrorIs(t, errUpdate, models.ErrTransactionImmutable)
	errDelete := conn.Delete(&row).Error
	require.ErrorIs(t, errDelete, models.ErrTransactionImmutable)

	var reloaded models.BalanceTransaction
	require.NoError(t, conn.First(&reloaded, row.ID).Error)
	require.Equal(t, int64(10), reloaded.Amount)
}

func TestEnsureBalanceIsIdempotent(t *testing.T) {
	conn := openTestDB(t)
	l := New(conn)
	first, errEnsure := l.EnsureBalance(context.Background(), 11)
	require.NoError(t, errEnsure)
	second, errEnsure := l.EnsureBalance(context.Background(), 11)
	require.NoError(t, errEnsure)
	require.Equal(t, first.ID, second.ID)

	_, errBalance := l.Balance(context.Background(), 12)
	require.ErrorIs(t, errBalance, ErrBalanceNotFound)
}
