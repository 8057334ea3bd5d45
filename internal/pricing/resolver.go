package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creditstudio/CreditStudio/internal/config"
	"github.com/creditstudio/CreditStudio/internal/metrics"
	"github.com/creditstudio/CreditStudio/internal/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Quote is a resolved price together with how it was derived.
type Quote struct {
	Credits     int64           `json:"credits"`
	Tier        Tier            `json:"tier"`
	ServiceType string          `json:"service_type"`
	ProviderID  uint64          `json:"provider_id"`
	EntryID     uint64          `json:"entry_id,omitempty"`
	NativeCost  decimal.Decimal `json:"native_cost"`
	RateID      uint64          `json:"rate_id,omitempty"`
	Degraded    bool            `json:"degraded"`
}

// Resolver maps (service type, provider, parameters) to an integer credit cost.
// Every call reads current database state.
type Resolver struct {
	db      *gorm.DB
	cfg     config.PricingConfig
	now     func() time.Time
	metrics *metrics.Metrics
}

// NewResolver constructs a Resolver over db using cfg.
func NewResolver(db *gorm.DB, cfg config.PricingConfig) *Resolver {
	cfg.ApplyDefaults()
	return &Resolver{
		db:      db,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		metrics: metrics.Get(),
	}
}

// WithClock returns a copy of r that reads the current time from now.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	clone := *r
	clone.now = now
	return &clone
}

// Resolve returns the credit cost for a request.
func (r *Resolver) Resolve(ctx context.Context, serviceType string, providerID uint64, params map[string]any) (int64, error) {
	quote, err := r.Quote(ctx, serviceType, providerID, params)
	if err != nil {
		return 0, err
	}
	return quote.Credits, nil
}

// Quote resolves the credit cost for a request and reports the tier, entry and rate used.
func (r *Resolver) Quote(ctx context.Context, serviceType string, providerID uint64, params map[string]any) (*Quote, error) {
	start := time.Now()
	serviceType = strings.TrimSpace(serviceType)
	defer func() {
		r.metrics.PricingResolutionDuration.WithLabelValues(serviceType).Observe(time.Since(start).Seconds())
	}()

	quote, err := r.quote(ctx, serviceType, providerID, params)
	if err != nil {
		r.metrics.PricingResolutionTotal.WithLabelValues(serviceType, "error").Inc()
		return nil, err
	}
	r.metrics.PricingResolutionTotal.WithLabelValues(serviceType, string(quote.Tier)).Inc()
	if r.cfg.LogResolutions {
		log.WithFields(log.Fields{
			"service_type": serviceType,
			"provider_id":  providerID,
			"tier":         quote.Tier,
			"entry_id":     quote.EntryID,
			"rate_id":      quote.RateID,
			"credits":      quote.Credits,
		}).Info("pricing resolved")
	}
	return quote, nil
}

func (r *Resolver) quote(ctx context.Context, serviceType string, providerID uint64, params map[string]any) (*Quote, error) {
	if errProvider := r.ensureProviderActive(ctx, providerID); errProvider != nil {
		return nil, errProvider
	}

	entry, tier, errFind := r.FindPricing(ctx, serviceType, providerID, params)
	if errFind != nil {
		return nil, errFind
	}
	if entry == nil {
		return r.missingPricing(serviceType, providerID)
	}

	credits, rate, errCalc := r.CalculateFromPricing(ctx, entry.TokenCost, providerID)
	if errCalc != nil {
		return nil, errCalc
	}
	quote := &Quote{
		Credits:     credits,
		Tier:        tier,
		ServiceType: serviceType,
		ProviderID:  providerID,
		EntryID:     entry.ID,
		NativeCost:  entry.TokenCost,
		Degraded:    rate == nil,
	}
	if rate != nil {
		quote.RateID = rate.ID
	}
	return quote, nil
}

func (r *Resolver) ensureProviderActive(ctx context.Context, providerID uint64) error {
	var provider models.Provider
	if errFind := r.db.WithContext(ctx).
		Select("id", "is_active").
		Where("id = ?", providerID).
		First(&provider).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: provider %d not found", ErrProviderInactive, providerID)
		}
		return fmt.Errorf("pricing: load provider: %w", errFind)
	}
	if !provider.IsActive {
		return fmt.Errorf("%w: provider %d", ErrProviderInactive, providerID)
	}
	return nil
}

// FindPricing runs the exact, partial and default tiers over the active entries for
// (provider, service type). A nil entry means no tier matched.
func (r *Resolver) FindPricing(ctx context.Context, serviceType string, providerID uint64, params map[string]any) (*models.PricingEntry, Tier, error) {
	var entries []models.PricingEntry
	if errFind := r.db.WithContext(ctx).
		Where("provider_id = ? AND service_type = ? AND is_active = ?", providerID, serviceType, true).
		Order("sort_order ASC, id ASC").
		Find(&entries).Error; errFind != nil {
		return nil, "", fmt.Errorf("pricing: load entries: %w", errFind)
	}
	if params == nil {
		params = map[string]any{}
	}

	if entry := SelectExact(entries, params); entry != nil {
		return entry, TierExact, nil
	}
	if r.cfg.PartialMatchingEnabled() {
		if entry := SelectPartial(entries, params); entry != nil {
			return entry, TierPartial, nil
		}
	}
	if r.cfg.DefaultFallbackEnabled() {
		if entry := SelectDefault(entries); entry != nil {
			return entry, TierDefault, nil
		}
	}
	return nil, "", nil
}

func (r *Resolver) missingPricing(serviceType string, providerID uint64) (*Quote, error) {
	fields := log.Fields{"service_type": serviceType, "provider_id": providerID, "strategy": r.cfg.MissingStrategy}

	switch r.cfg.MissingStrategy {
	case config.MissingStrategyFallback:
		credits, ok := r.cfg.FallbackCredits[serviceType]
		if !ok {
			credits, ok = r.cfg.FallbackCredits["default"]
		}
		if ok {
			if r.cfg.LogMissingEnabled() {
				log.WithFields(fields).WithField("credits", credits).Warn("pricing missing, using fallback credits")
			}
			return &Quote{
				Credits:     credits,
				Tier:        TierFallback,
				ServiceType: serviceType,
				ProviderID:  providerID,
				NativeCost:  decimal.Zero,
			}, nil
		}
		log.WithFields(fields).Error("pricing missing and no fallback credits configured")
		return nil, fmt.Errorf("%w: provider %d service %s", ErrPricingNotFound, providerID, serviceType)
	case config.MissingStrategyDisableService:
		if r.cfg.LogMissingEnabled() {
			log.WithFields(fields).Warn("pricing missing, service disabled")
		}
		return nil, fmt.Errorf("%w: provider %d service %s", ErrServiceDisabled, providerID, serviceType)
	default:
		log.WithFields(fields).Error("pricing missing")
		return nil, fmt.Errorf("%w: provider %d service %s", ErrPricingNotFound, providerID, serviceType)
	}
}

// CalculateFromPricing converts a native-unit cost into credits using the provider's currency
// rate, then the global rate for the default currency. With neither, native units map 1:1 and
// the returned rate is nil.
func (r *Resolver) CalculateFromPricing(ctx context.Context, cost decimal.Decimal, providerID uint64) (int64, *models.CurrencyRate, error) {
	rate, errRate := r.ActiveCurrencyRate(ctx, providerID)
	if errRate != nil {
		return 0, nil, errRate
	}
	if rate == nil {
		r.metrics.PricingDegradedTotal.Inc()
		log.WithFields(log.Fields{
			"provider_id": providerID,
			"currency":    r.cfg.DefaultCurrency,
		}).Warn("no valid currency rate, converting native units 1:1")
		return ceilCredits(cost), nil, nil
	}
	creditRate := decimal.NewFromFloat(r.cfg.CreditToCurrencyRate)
	return ConvertCredits(cost, rate.Rate, rate.MarkupPercentage, creditRate), rate, nil
}

// ActiveCurrencyRate returns the first currently valid rate for the provider, else the first
// currently valid global rate in the default currency, else nil.
func (r *Resolver) ActiveCurrencyRate(ctx context.Context, providerID uint64) (*models.CurrencyRate, error) {
	now := r.now()

	var providerRates []models.CurrencyRate
	if errFind := r.db.WithContext(ctx).
		Where("provider_id = ? AND is_active = ?", providerID, true).
		Order("id ASC").
		Find(&providerRates).Error; errFind != nil {
		return nil, fmt.Errorf("pricing: load provider rates: %w", errFind)
	}
	if rate := firstValidRate(providerRates, now); rate != nil {
		return rate, nil
	}

	var globalRates []models.CurrencyRate
	if errFind := r.db.WithContext(ctx).
		Where("provider_id IS NULL AND is_active = ? AND to_currency = ?", true, r.cfg.DefaultCurrency).
		Order("id ASC").
		Find(&globalRates).Error; errFind != nil {
		return nil, fmt.Errorf("pricing: load global rates: %w", errFind)
	}
	return firstValidRate(globalRates, now), nil
}

func firstValidRate(rates []models.CurrencyRate, now time.Time) *models.CurrencyRate {
	for i := range rates {
		if rates[i].IsValidAt(now) {
			return &rates[i]
		}
	}
	return nil
}
