// Package catalog imports providers, currency rates, pricing entries and services from a YAML or
// TOML document.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creditstudio/CreditStudio/internal/models"
	"github.com/creditstudio/CreditStudio/internal/provider"
	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Catalog is the document shape.
type Catalog struct {
	Providers     []Provider     `yaml:"providers" toml:"providers"`
	CurrencyRates []CurrencyRate `yaml:"currency_rates" toml:"currency_rates"`
	Pricing       []PricingEntry `yaml:"pricing" toml:"pricing"`
	Services      []Service      `yaml:"services" toml:"services"`
}

// Provider declares a provider row.
type Provider struct {
	Name        string `yaml:"name" toml:"name"`
	DisplayName string `yaml:"display_name" toml:"display_name"`
	Active      *bool  `yaml:"active" toml:"active"`
}

// CurrencyRate declares a conversion rate. An empty Provider makes the rate global.
type CurrencyRate struct {
	Provider         string     `yaml:"provider" toml:"provider"`
	FromUnit         string     `yaml:"from_unit" toml:"from_unit"`
	ToCurrency       string     `yaml:"to_currency" toml:"to_currency"`
	Rate             string     `yaml:"rate" toml:"rate"`
	MarkupPercentage string     `yaml:"markup_percentage" toml:"markup_percentage"`
	Active           *bool      `yaml:"active" toml:"active"`
	ValidFrom        *time.Time `yaml:"valid_from" toml:"valid_from"`
	ValidUntil       *time.Time `yaml:"valid_until" toml:"valid_until"`
}

// PricingEntry declares a priced condition set.
type PricingEntry struct {
	Provider    string         `yaml:"provider" toml:"provider"`
	ServiceType string         `yaml:"service_type" toml:"service_type"`
	Conditions  map[string]any `yaml:"conditions" toml:"conditions"`
	TokenCost   string         `yaml:"token_cost" toml:"token_cost"`
	Unit        string         `yaml:"unit" toml:"unit"`
	Default     bool           `yaml:"default" toml:"default"`
	SortOrder   int            `yaml:"sort_order" toml:"sort_order"`
	Active      *bool          `yaml:"active" toml:"active"`
}

// Service declares a service and its ordered steps.
type Service struct {
	Slug        string `yaml:"slug" toml:"slug"`
	Name        string `yaml:"name" toml:"name"`
	Description string `yaml:"description" toml:"description"`
	Active      *bool  `yaml:"active" toml:"active"`
	Steps       []Step `yaml:"steps" toml:"steps"`
}

// Step declares one workflow step; order is its position in the list.
type Step struct {
	Name                 string         `yaml:"name" toml:"name"`
	ModelType            string         `yaml:"model_type" toml:"model_type"`
	Provider             string         `yaml:"provider" toml:"provider"`
	RequiresConfirmation bool           `yaml:"requires_confirmation" toml:"requires_confirmation"`
	PromptTemplate       string         `yaml:"prompt_template" toml:"prompt_template"`
	Config               map[string]any `yaml:"config" toml:"config"`
}

// Summary counts imported rows.
type Summary struct {
	Providers     int
	CurrencyRates int
	Pricing       int
	Services      int
	Steps         int
}

// Load reads a catalog file. Files ending in .toml are decoded as TOML, anything else as YAML.
func Load(path string) (*Catalog, error) {
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, errRead)
	}
	var c Catalog
	var errDecode error
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		errDecode = toml.Unmarshal(data, &c)
	} else {
		errDecode = yaml.Unmarshal(data, &c)
	}
	if errDecode != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", path, errDecode)
	}
	return &c, nil
}

func isActive(v *bool) bool { return v == nil || *v }

// Import applies the catalog in one transaction. Providers and services are upserted by name and
// slug. Pricing entries replace those of every (provider, service type) pair listed, and currency
// rates replace those of every (provider, to currency) pair listed.
func Import(ctx context.Context, db *gorm.DB, c *Catalog) (*Summary, error) {
	var sum Summary
	errTx := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids := map[string]uint64{}
		for _, p := range c.Providers {
			name := strings.TrimSpace(p.Name)
			if name == "" {
				return errors.New("catalog: provider without name")
			}
			var row models.Provider
			if errFind := tx.Where("name = ?", name).Attrs(models.Provider{Name: name}).FirstOrCreate(&row).Error; errFind != nil {
				return fmt.Errorf("catalog: provider %s: %w", name, errFind)
			}
			displayName := p.DisplayName
			if displayName == "" {
				displayName = name
			}
			if errUpdate := tx.Model(&row).Updates(map[string]any{"display_name": displayName, "is_active": isActive(p.Active)}).Error; errUpdate != nil {
				return fmt.Errorf("catalog: provider %s: %w", name, errUpdate)
			}
			ids[strings.ToLower(name)] = row.ID
			sum.Providers++
		}

		lookup := func(name string) (uint64, error) {
			key := strings.ToLower(strings.TrimSpace(name))
			if id, ok := ids[key]; ok {
				return id, nil
			}
			var row models.Provider
			if errFind := tx.Where("LOWER(name) = ?", key).First(&row).Error; errFind != nil {
				return 0, fmt.Errorf("catalog: unknown provider %q", name)
			}
			ids[key] = row.ID
			return row.ID, nil
		}

		n, errRates := importRates(tx, c.CurrencyRates, lookup)
		if errRates != nil {
			return errRates
		}
		sum.CurrencyRates = n

		n, errPricing := importPricing(tx, c.Pricing, lookup)
		if errPricing != nil {
			return errPricing
		}
		sum.Pricing = n

		for _, s := range c.Services {
			steps, errService := importService(tx, s, lookup)
			if errService != nil {
				return errService
			}
			sum.Services++
			sum.Steps += steps
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	log.WithFields(log.Fields{
		"providers": sum.Providers,
		"rates":     sum.CurrencyRates,
		"pricing":   sum.Pricing,
		"services":  sum.Services,
		"steps":     sum.Steps,
	}).Info("catalog imported")
	return &sum, nil
}

func importRates(tx *gorm.DB, rates []CurrencyRate, lookup func(string) (uint64, error)) (int, error) {
	cleared := map[string]bool{}
	for _, r := range rates {
		var providerID *uint64
		if strings.TrimSpace(r.Provider) != "" {
			id, errLookup := lookup(r.Provider)
			if errLookup != nil {
				return 0, errLookup
			}
			providerID = &id
		}
		currency := strings.ToUpper(strings.TrimSpace(r.ToCurrency))
		if currency == "" {
			currency = "USD"
		}
		rate, errRate := decimal.NewFromString(strings.TrimSpace(r.Rate))
		if errRate != nil || !rate.IsPositive() {
			return 0, fmt.Errorf("catalog: invalid rate %q", r.Rate)
		}
		markup := decimal.Zero
		if strings.TrimSpace(r.MarkupPercentage) != "" {
			parsed, errMarkup := decimal.NewFromString(strings.TrimSpace(r.MarkupPercentage))
			if errMarkup != nil {
				return 0, fmt.Errorf("catalog: invalid markup %q", r.MarkupPercentage)
			}
			markup = parsed
		}

		key := "global/" + currency
		if providerID != nil {
			key = fmt.Sprintf("%d/%s", *providerID, currency)
		}
		if !cleared[key] {
			q := tx.Where("to_currency = ?", currency)
			if providerID == nil {
				q = q.Where("provider_id IS NULL")
			} else {
				q = q.Where("provider_id = ?", *providerID)
			}
			if errDelete := q.Delete(&models.CurrencyRate{}).Error; errDelete != nil {
				return 0, fmt.Errorf("catalog: clear rates: %w", errDelete)
			}
			cleared[key] = true
		}

		fromUnit := strings.TrimSpace(r.FromUnit)
		if fromUnit == "" {
			fromUnit = "tokens"
		}
		row := models.CurrencyRate{
			ProviderID:       providerID,
			FromUnit:         fromUnit,
			ToCurrency:       currency,
			Rate:             rate,
			MarkupPercentage: markup,
			IsActive:         isActive(r.Active),
			ValidFrom:        r.ValidFrom,
			ValidUntil:       r.ValidUntil,
		}
		if errCreate := tx.Create(&row).Error; errCreate != nil {
			return 0, fmt.Errorf("catalog: create rate: %w", errCreate)
		}
	}
	return len(rates), nil
}

func importPricing(tx *gorm.DB, entries []PricingEntry, lookup func(string) (uint64, error)) (int, error) {
	cleared := map[string]bool{}
	for _, e := range entries {
		providerID, errLookup := lookup(e.Provider)
		if errLookup != nil {
			return 0, errLookup
		}
		serviceType := strings.ToLower(strings.TrimSpace(e.ServiceType))
		if serviceType == "" {
			return 0, fmt.Errorf("catalog: pricing for %s without service_type", e.Provider)
		}
		cost, errCost := decimal.NewFromString(strings.TrimSpace(e.TokenCost))
		if errCost != nil || cost.IsNegative() {
			return 0, fmt.Errorf("catalog: invalid token_cost %q", e.TokenCost)
		}

		key := fmt.Sprintf("%d/%s", providerID, serviceType)
		if !cleared[key] {
			if errDelete := tx.Where("provider_id = ? AND service_type = ?", providerID, serviceType).Delete(&models.PricingEntry{}).Error; errDelete != nil {
				return 0, fmt.Errorf("catalog: clear pricing: %w", errDelete)
			}
			cleared[key] = true
		}

		conditions := datatypes.JSONMap{}
		for k, v := range e.Conditions {
			conditions[k] = v
		}
		row := models.PricingEntry{
			ProviderID:  providerID,
			ServiceType: serviceType,
			Conditions:  conditions,
			TokenCost:   cost,
			Unit:        e.Unit,
			IsDefault:   e.Default,
			IsActive:    isActive(e.Active),
			SortOrder:   e.SortOrder,
		}
		if errCreate := tx.Create(&row).Error; errCreate != nil {
			return 0, fmt.Errorf("catalog: create pricing: %w", errCreate)
		}
	}
	return len(entries), nil
}

func importService(tx *gorm.DB, s Service, lookup func(string) (uint64, error)) (int, error) {
	slug := strings.ToLower(strings.TrimSpace(s.Slug))
	if slug == "" {
		return 0, errors.New("catalog: service without slug")
	}
	if len(s.Steps) == 0 {
		return 0, fmt.Errorf("catalog: service %s has no steps", slug)
	}
	name := s.Name
	if name == "" {
		name = slug
	}
	var svc models.Service
	if errFind := tx.Where("slug = ?", slug).Attrs(models.Service{Slug: slug, Name: name}).FirstOrCreate(&svc).Error; errFind != nil {
		return 0, fmt.Errorf("catalog: service %s: %w", slug, errFind)
	}
	if errUpdate := tx.Model(&svc).Updates(map[string]any{
		"name":        name,
		"description": s.Description,
		"is_active":   isActive(s.Active),
	}).Error; errUpdate != nil {
		return 0, fmt.Errorf("catalog: service %s: %w", slug, errUpdate)
	}

	for i, st := range s.Steps {
		providerID, errLookup := lookup(st.Provider)
		if errLookup != nil {
			return 0, errLookup
		}
		config := datatypes.JSONMap{}
		for k, v := range st.Config {
			config[k] = v
		}
		step := models.WorkflowStep{
			ServiceID:            svc.ID,
			Order:                i + 1,
			Name:                 st.Name,
			ModelType:            string(provider.ParseModelType(st.ModelType)),
			ProviderID:           providerID,
			RequiresConfirmation: st.RequiresConfirmation,
			PromptTemplate:       st.PromptTemplate,
			Config:               config,
		}
		var existing models.WorkflowStep
		errFind := tx.Where("service_id = ? AND step_order = ?", svc.ID, i+1).First(&existing).Error
		switch {
		case errors.Is(errFind, gorm.ErrRecordNotFound):
			if errCreate := tx.Create(&step).Error; errCreate != nil {
				return 0, fmt.Errorf("catalog: service %s step %d: %w", slug, i+1, errCreate)
			}
		case errFind != nil:
			return 0, fmt.Errorf("catalog: service %s step %d: %w", slug, i+1, errFind)
		default:
			if errUpdate := tx.Model(&existing).Updates(map[string]any{
				"name":                  step.Name,
				"model_type":            step.ModelType,
				"provider_id":           step.ProviderID,
				"requires_confirmation": step.RequiresConfirmation,
				"prompt_template":       step.PromptTemplate,
				"config":                step.Config,
			}).Error; errUpdate != nil {
				return 0, fmt.Errorf("catalog: service %s step %d: %w", slug, i+1, errUpdate)
			}
		}
	}
	// Steps beyond the new length are removed; chats pointing past the end finish on advance.
	if errDelete := tx.Where("service_id = ? AND step_order > ?", svc.ID, len(s.Steps)).Delete(&models.WorkflowStep{}).Error; errDelete != nil {
		return 0, fmt.Errorf("catalog: service %s: trim steps: %w", slug, errDelete)
	}
	return len(s.Steps), nil
}
