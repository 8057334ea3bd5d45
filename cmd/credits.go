package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/creditstudio/CreditStudio/internal/app"
	"github.com/creditstudio/CreditStudio/internal/ledger"
	"github.com/creditstudio/CreditStudio/internal/models"
	"github.com/spf13/cobra"
)

func newCreditsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and top up user balances",
	}

	cmd.AddCommand(
		newCreditsAddCmd(opts),
		newCreditsShowCmd(opts),
	)

	return cmd
}

func newCreditsAddCmd(opts *options) *cobra.Command {
	var (
		userID      uint64
		amount      int64
		txType      string
		description string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Credit a user's balance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(rt *app.Runtime) error {
				kind := models.TransactionType(strings.ToLower(strings.TrimSpace(txType)))
				if kind != models.TransactionCredit && kind != models.TransactionBonus {
					return fmt.Errorf("--type must be credit or bonus, got %q", txType)
				}
				if description == "" {
					description = "manual " + string(kind)
				}
				ok, err := rt.Ledger.Add(cmd.Context(), userID, amount, description, kind)
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("credit rejected")
				}
				bal, err := rt.Ledger.Balance(cmd.Context(), userID)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "user %d: credits=%d available=%d\n", userID, bal.Credits, bal.AvailableCredits())
				return err
			})
		},
	}
	cmd.Flags().Uint64Var(&userID, "user", 0, "user id")
	cmd.Flags().Int64Var(&amount, "amount", 0, "credits to add")
	cmd.Flags().StringVar(&txType, "type", string(models.TransactionCredit), "transaction type (credit|bonus)")
	cmd.Flags().StringVar(&description, "description", "", "ledger description")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newCreditsShowCmd(opts *options) *cobra.Command {
	var (
		userID uint64
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a user's balance and recent transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(rt *app.Runtime) error {
				out := cmd.OutOrStdout()
				bal, err := rt.Ledger.Balance(cmd.Context(), userID)
				if errors.Is(err, ledger.ErrBalanceNotFound) {
					_, err = fmt.Fprintf(out, "user %d: no balance\n", userID)
					return err
				}
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "user %d: credits=%d reserved=%d available=%d\n", userID, bal.Credits, bal.ReservedCredits, bal.AvailableCredits())

				rows, total, err := rt.Ledger.Transactions(cmd.Context(), userID, limit, 0)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "transactions: %d\n", total)
				for _, row := range rows {
					_, _ = fmt.Fprintf(out, "%d\t%s\t%d\t%d->%d\t%s\n", row.ID, row.Type, row.Amount, row.BalanceBefore, row.BalanceAfter, row.Description)
				}
				return nil
			})
		},
	}
	cmd.Flags().Uint64Var(&userID, "user", 0, "user id")
	cmd.Flags().IntVar(&limit, "limit", 10, "transactions to list")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
