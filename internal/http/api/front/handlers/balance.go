package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/creditstudio/CreditStudio/internal/ledger"
	"github.com/gin-gonic/gin"
)

// BalanceHandler serves the user's balance and ledger.
type BalanceHandler struct {
	ledger *ledger.Ledger
}

// NewBalanceHandler constructs a BalanceHandler.
func NewBalanceHandler(l *ledger.Ledger) *BalanceHandler {
	return &BalanceHandler{ledger: l}
}

// transactionDTO defines a ledger row in responses.
type transactionDTO struct {
	ID            uint64    `json:"id"`
	Type          string    `json:"type"`
	Amount        int64     `json:"amount"`
	BalanceBefore int64     `json:"balance_before"`
	BalanceAfter  int64     `json:"balance_after"`
	Description   string    `json:"description"`
	ReferenceType *string   `json:"reference_type,omitempty"`
	ReferenceID   *uint64   `json:"reference_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// transactionsQuery defines query parameters for listing transactions.
type transactionsQuery struct {
	Page  int `form:"page,default=1"`
	Limit int `form:"limit,default=20"`
}

// Get returns credits, reserved credits and available credits.
func (h *BalanceHandler) Get(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	bal, errBalance := h.ledger.Balance(c.Request.Context(), userID)
	if errors.Is(errBalance, ledger.ErrBalanceNotFound) {
		c.JSON(http.StatusOK, gin.H{"credits": 0, "reserved_credits": 0, "available_credits": 0})
		return
	}
	if errBalance != nil {
		writeError(c, errBalance)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"credits":           bal.Credits,
		"reserved_credits":  bal.ReservedCredits,
		"available_credits": bal.AvailableCredits(),
	})
}

// Transactions lists the user's ledger rows, newest first.
func (h *BalanceHandler) Transactions(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var q transactionsQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 20
	}

	rows, total, errList := h.ledger.Transactions(c.Request.Context(), userID, q.Limit, (q.Page-1)*q.Limit)
	if errList != nil {
		writeError(c, errList)
		return
	}
	out := make([]transactionDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, transactionDTO{
			ID:            row.ID,
			Type:          string(row.Type),
			Amount:        row.Amount,
			BalanceBefore: row.BalanceBefore,
			BalanceAfter:  row.BalanceAfter,
			Description:   row.Description,
			ReferenceType: row.ReferenceType,
			ReferenceID:   row.ReferenceID,
			CreatedAt:     row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"transactions": out,
		"total":        total,
		"page":         q.Page,
		"limit":        q.Limit,
	})
}
