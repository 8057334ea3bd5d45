package cmd

import (
	"fmt"

	"github.com/creditstudio/CreditStudio/internal/app"
	"github.com/creditstudio/CreditStudio/internal/catalog"
	"github.com/spf13/cobra"
)

func newCatalogCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage providers, pricing and workflow services",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Import a YAML catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := catalog.Load(args[0])
			if err != nil {
				return err
			}
			return withRuntime(cmd, opts, func(rt *app.Runtime) error {
				sum, err := catalog.Import(cmd.Context(), rt.DB, c)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "providers=%d rates=%d pricing=%d services=%d steps=%d\n",
					sum.Providers, sum.CurrencyRates, sum.Pricing, sum.Services, sum.Steps)
				return err
			})
		},
	})
	return cmd
}
