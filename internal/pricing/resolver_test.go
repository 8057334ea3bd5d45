package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/creditstudio/CreditStudio/internal/config"
	"github.com/creditstudio/CreditStudio/internal/db"
	"github.com/creditstudio/CreditStudio/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := db.Open(":memory:")
	require.NoError(t, errOpen)
	require.NoError(t, db.Migrate(conn))
	return conn
}

func seedProvider(t *testing.T, conn *gorm.DB, name string, active bool) models.Provider {
	t.Helper()
	p := models.Provider{Name: name, IsActive: active}
	require.NoError(t, conn.Create(&p).Error)
	return p
}

func seedEntry(t *testing.T, conn *gorm.DB, e models.PricingEntry) models.PricingEntry {
	t.Helper()
	e.IsActive = true
	require.NoError(t, conn.Create(&e).Error)
	return e
}

func seedRate(t *testing.T, conn *gorm.DB, r models.CurrencyRate) models.CurrencyRate {
	t.Helper()
	if r.FromUnit == "" {
		r.FromUnit = "tokens"
	}
	if r.ToCurrency == "" {
		r.ToCurrency = "USD"
	}
	require.NoError(t, conn.Create(&r).Error)
	return r
}

func newTestResolver(conn *gorm.DB, mutate func(*config.PricingConfig)) *Resolver {
	cfg := config.PricingConfig{}
	cfg.ApplyDefaults()
	if mutate != nil {
		mutate(&cfg)
	}
	return NewResolver(conn, cfg)
}

func TestResolveAppliesRateMarkupAndCeil(t *testing.T) {
	conn := openTestDB(t)
	p := seedProvider(t, conn, "gemini", true)
	seedEntry(t, conn, models.PricingEntry{ProviderID: p.ID, ServiceType: "text", Conditions: datatypes.JSONMap{}, TokenCost: decimal.NewFromInt(26)})
	seedRate(t, conn, models.CurrencyRate{ProviderID: &p.ID, Rate: decimal.NewFromInt(1), MarkupPercentage: decimal.NewFromInt(20), IsActive: true})

	credits, errResolve := newTestResolver(conn, nil).Resolve(context.Background(), "text", p.ID, nil)
	require.NoError(t, errResolve)
	require.Equal(t, int64(32), credits)
}

func TestResolveExactMatchBeatsDefault(t *testing.T) {
	conn := openTestDB(t)
	p := seedProvider(t, conn, "pollinations", true)
	seedEntry(t, conn, models.PricingEntry{ProviderID: p.ID, ServiceType: "image", Conditions: datatypes.JSONMap{}, TokenCost: decimal.NewFromInt(10), IsDefault: true})
	specific := seedEntry(t, conn, models.PricingEntry{ProviderID: p.ID, ServiceType: "image", Conditions: datatypes.JSONMap{"resolution": "512x512"}, TokenCost: decimal.NewFromInt(5), SortOrder: 5})

	quote, errQuote := newTestResolver(conn, nil).Quote(context.Background(), "image", p.ID, map[string]any{"resolution": "512x512"})
	require.NoError(t, errQuote)
	require.Equal(t, TierExact, quote.Tier)
	require.Equal(t, specific.ID, quote.EntryID)
	require.Equal(t, int64(5), quote.Credits)
	require.True(t, quote.Degraded)
}

func TestResolvePartialThenDefaultTiers(t *testing.T) {
	conn := openTestDB(t)
	p := seedProvider(t, conn, "gemini", true)
	seedEntry(t, conn, models.PricingEntry{ProviderID: p.ID, ServiceType: "image", Conditions: datatypes.JSONMap{"a": 1, "d": 5}, TokenCost: decimal.NewFromInt(3)})
	two := seedEntry(t, conn, models.PricingEntry{ProviderID: p.ID, ServiceType: "image", Conditions: datatypes.JSONMap{"a": 1, "b": 2, "e": 7}, TokenCost: decimal.NewFromInt(7)})
	def := seedEntry(t, conn, models.PricingEntry{ProviderID: p.ID, ServiceType: "image", Conditions: datatypes.JSONMap{"q": "hd"}, TokenCost: decimal.NewFromInt(11), IsDefault: true})

	resolver := newTestResolver(conn, nil)
	ctx := context.Background()

	quote, errQuote := resolver.Quote(ctx, "image", p.ID, map[string]any{"a": 1, "b": 2})
	require.NoError(t, errQuote)
	require.Equal(t, TierPartial, quote.Tier)
	require.Equal(t, two.ID, quote.EntryID)
	require.Equal(t, int64(7), quote.Credits)

	quote, errQuote = resolver.Quote(ctx, "image", p.ID, map[string]any{"x": 1})
	require.NoError(t, errQuote)
	require.Equal(t, TierDefault, quote.Tier)
	require.Equal(t, def.ID, quote.EntryID)
	require.Equal(t, int64(11), quote.Credits)

	noPartial := newTestResolver(conn, func(c *config.PricingConfig) {
		off := false
		c.PartialMatching = &off
	})
	quote, errQuote = noPartial.Quote(ctx, "image", p.ID, map[string]any{"a": 1, "b": 2})
	require.NoError(t, errQuote)
	require.Equal(t, TierDefault, quote.Tier)
}

func TestResolveProviderInactive(t *testing.T) {
	conn := openTestDB(t)
	p := seedProvider(t, conn, "gemini", true)
	seedEntry(t, conn, models.PricingEntry{ProviderID: p.ID, ServiceType: "text", Conditions: datatypes.JSONMap{}, TokenCost: decimal.NewFromInt(1)})
	require.NoError(t, conn.Model(&p).Update("is_active", false).Error)

	_, errResolve := newTestResolver(conn, nil).Resolve(context.Background(), "text", p.ID, nil)
	require.ErrorIs(t, errResolve, ErrProviderInactive)

	_, errResolve = newTestResolver(conn, nil).Resolve(context.Background(), "text", 9999, nil)
	require.ErrorIs(t, errResolve, ErrProviderInactive)
}

func TestResolveMissingPricingStrategies(t *testing.T) {
	conn := openTestDB(t)
	p := seedProvider(t, conn, "gemini", true)
	ctx := context.Background()

	fallback := newTestResolver(conn, func(c *config.PricingConfig) {
		c.FallbackCredits = map[string]int64{"video": 40, "default": 9}
	})
	quote, errQuote := fallback.Quote(ctx, "video", p.ID, nil)
	require.NoError(t, errQuote)
	require.Equal(t, TierFallback, quote.Tier)
	require.Equal(t, int64(40), quote.Credits)

	credits, errResolve := fallback.Resolve(ctx, "audio", p.ID, nil)
	require.NoError(t, errResolve)
	require.Equal(t, int64(9), credits)

	_, errResolve = newTestResolver(conn, nil).Resolve(ctx, "audio", p.ID, nil)
	require.ErrorIs(t, errResolve, ErrPricingNotFound)

	disable := newTestResolver(conn, func(c *config.PricingConfig) { c.MissingStrategy = config.MissingStrategyDisableService })
	_, errResolve = disable.Resolve(ctx, "audio", p.ID, nil)
	require.ErrorIs(t, errResolve, ErrServiceDisabled)

	exception := newTestResolver(conn, func(c *config.PricingConfig) {
		c.MissingStrategy = config.MissingStrategyException
		c.FallbackCredits = map[string]int64{"audio": 1}
	})
	_, errResolve = exception.Resolve(ctx, "audio", p.ID, nil)
	require.True(t, errors.Is(errResolve, ErrPricingNotFound))
}

func TestResolveMissingWhenDefaultTierDisabled(t *testing.T) {
	conn := openTestDB(t)
	p := seedProvider(t, conn, "gemini", true)
	seedEntry(t, conn, models.PricingEntry{ProviderID: p.ID, ServiceType: "image", Conditions: datatypes.JSONMap{"q": "hd"}, TokenCost: decimal.NewFromInt(11), IsDefault: true})

	resolver := newTestResolver(conn, func(c *config.PricingConfig) {
		off := false
		c.DefaultFallback = &off
		c.MissingStrategy = config.MissingStrategyException
	})
	_, errResolve := resolver.Resolve(context.Background(), "image", p.ID, map[string]any{"q": "sd"})
	require.ErrorIs(t, errResolve, ErrPricingNotFound)
}

func TestActiveCurrencyRateValidityWindowAndGlobalFallback(t *testing.T) {
	conn := openTestDB(t)
	p := seedProvider(t, conn, "gemini", true)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-48 * time.Hour)
	future := now.Add(48 * time.Hour)

	seedRate(t, conn, models.CurrencyRate{ProviderID: &p.ID, Rate: decimal.NewFromInt(100), IsActive: true, ValidUntil: &now})
	seedRate(t, conn, models.CurrencyRate{ProviderID: &p.ID, Rate: decimal.NewFromInt(200), IsActive: true, ValidFrom: &future})
	seedRate(t, conn, models.CurrencyRate{ProviderID: &p.ID, Rate: decimal.NewFromInt(300), IsActive: false})
	seedRate(t, conn, models.CurrencyRate{Rate: decimal.NewFromInt(7), IsActive: true, ToCurrency: "EUR"})
	global := seedRate(t, conn, models.CurrencyRate{Rate: decimal.NewFromInt(2), MarkupPercentage: decimal.NewFromInt(50), IsActive: true, ValidFrom: &past})

	resolver := newTestResolver(conn, nil).WithClock(func() time.Time { return now })
	ctx := context.Background()

	rate, errRate := resolver.ActiveCurrencyRate(ctx, p.ID)
	require.NoError(t, errRate)
	require.NotNil(t, rate)
	require.Equal(t, global.ID, rate.ID)

	credits, usedRate, errCalc := resolver.CalculateFromPricing(ctx, decimal.RequireFromString("3.3"), p.ID)
	require.NoError(t, errCalc)
	require.NotNil(t, usedRate)
	require.Equal(t, int64(10), credits) // 3.3 * 2 * 1.5 = 9.9

	current := seedRate(t, conn, models.CurrencyRate{ProviderID: &p.ID, Rate: decimal.NewFromInt(1), IsActive: true, ValidFrom: &past, ValidUntil: &future})
	rate, errRate = resolver.ActiveCurrencyRate(ctx, p.ID)
	require.NoError(t, errRate)
	require.Equal(t, current.ID, rate.ID)
}

func TestCalculateFromPricingDegradesToOneToOne(t *testing.T) {
	conn := openTestDB(t)
	p := seedProvider(t, conn, "gemini", true)

	credits, rate, errCalc := newTestResolver(conn, nil).CalculateFromPricing(context.Background(), decimal.RequireFromString("4.2"), p.ID)
	require.NoError(t, errCalc)
	require.Nil(t, rate)
	require.Equal(t, int64(5), credits)
}

func TestCalculateFromPricingUsesCreditRate(t *testing.T) {
	conn := openTestDB(t)
	p := seedProvider(t, conn, "gemini", true)
	seedRate(t, conn, models.CurrencyRate{ProviderID: &p.ID, Rate: decimal.RequireFromString("0.002"), IsActive: true})

	resolver := newTestResolver(conn, func(c *config.PricingConfig) { c.CreditToCurrencyRate = 0.01 })
	credits, _, errCalc := resolver.CalculateFromPricing(context.Background(), decimal.NewFromInt(1001), p.ID)
	require.NoError(t, errCalc)
	require.Equal(t, int64(201), credits) // 1001 * 0.002 / 0.01 = 200.2
}
