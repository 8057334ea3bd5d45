package settings

// DB config keys that override the pricing section of the config file.
const (
	// PricingMissingStrategyKey overrides pricing.missing_strategy.
	PricingMissingStrategyKey = "PRICING_MISSING_STRATEGY"
	// PricingPartialMatchingKey overrides pricing.partial_matching.
	PricingPartialMatchingKey = "PRICING_PARTIAL_MATCHING"
	// PricingDefaultFallbackKey overrides pricing.default_fallback.
	PricingDefaultFallbackKey = "PRICING_DEFAULT_FALLBACK"
	// PricingDefaultCurrencyKey overrides pricing.default_currency.
	PricingDefaultCurrencyKey = "PRICING_DEFAULT_CURRENCY"
	// PricingCreditRateKey overrides pricing.credit_to_currency_rate.
	PricingCreditRateKey = "PRICING_CREDIT_TO_CURRENCY_RATE"
	// PricingFallbackCreditsKey overrides entries of pricing.fallback_credits.
	PricingFallbackCreditsKey = "PRICING_FALLBACK_CREDITS"
)
