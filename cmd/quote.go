package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/creditstudio/CreditStudio/internal/app"
	"github.com/creditstudio/CreditStudio/internal/models"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newQuoteCmd(opts *options) *cobra.Command {
	var (
		serviceType string
		providerRef string
		params      map[string]string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a generation in credits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(rt *app.Runtime) error {
				providerID, err := lookupProvider(rt.DB.WithContext(cmd.Context()), providerRef)
				if err != nil {
					return err
				}
				values := make(map[string]any, len(params))
				for k, v := range params {
					values[k] = v
				}
				quote, err := rt.Resolver.Quote(cmd.Context(), serviceType, providerID, values)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(quote)
				}
				_, err = fmt.Fprintf(out, "%d credits (tier=%s, native=%s, degraded=%t)\n",
					quote.Credits, quote.Tier, quote.NativeCost.String(), quote.Degraded)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&serviceType, "service-type", "", "service type, e.g. text or image")
	cmd.Flags().StringVar(&providerRef, "provider", "", "provider id or name")
	cmd.Flags().StringToStringVar(&params, "param", nil, "request parameter key=value (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the quote as JSON")
	_ = cmd.MarkFlagRequired("service-type")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

// lookupProvider accepts a numeric id or a provider name.
func lookupProvider(db *gorm.DB, ref string) (uint64, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return id, nil
	}
	var row models.Provider
	err := db.Where("name = ?", ref).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("unknown provider %q", ref)
	}
	if err != nil {
		return 0, err
	}
	return row.ID, nil
}
