package settings

import (
	"strings"

	"github.com/creditstudio/CreditStudio/internal/config"
	log "github.com/sirupsen/logrus"
)

// ApplyPricingOverrides overlays DB-backed pricing settings onto cfg.
// It runs once at startup, before the pricing resolver is constructed.
func ApplyPricingOverrides(cfg *config.PricingConfig) {
	if cfg == nil {
		return
	}

	var strategy string
	if Decode(PricingMissingStrategyKey, &strategy) {
		strategy = strings.ToLower(strings.TrimSpace(strategy))
		switch strategy {
		case config.MissingStrategyFallback, config.MissingStrategyDisableService, config.MissingStrategyException:
			cfg.MissingStrategy = strategy
		default:
			log.Warnf("settings: ignoring unknown %s=%q", PricingMissingStrategyKey, strategy)
		}
	}

	var partial bool
	if Decode(PricingPartialMatchingKey, &partial) {
		cfg.PartialMatching = &partial
	}

	var defaultFallback bool
	if Decode(PricingDefaultFallbackKey, &defaultFallback) {
		cfg.DefaultFallback = &defaultFallback
	}

	var currency string
	if Decode(PricingDefaultCurrencyKey, &currency) && strings.TrimSpace(currency) != "" {
		cfg.DefaultCurrency = strings.ToUpper(strings.TrimSpace(currency))
	}

	var creditRate float64
	if Decode(PricingCreditRateKey, &creditRate) {
		if creditRate > 0 {
			cfg.CreditToCurrencyRate = creditRate
		} else {
			log.Warnf("settings: ignoring non-positive %s", PricingCreditRateKey)
		}
	}

	var fallbacks map[string]int64
	if Decode(PricingFallbackCreditsKey, &fallbacks) {
		if cfg.FallbackCredits == nil {
			cfg.FallbackCredits = map[string]int64{}
		}
		for serviceType, credits := range fallbacks {
			if credits < 0 {
				continue
			}
			cfg.FallbackCredits[strings.TrimSpace(serviceType)] = credits
		}
	}
}
