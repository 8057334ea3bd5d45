package pricing

import "errors"

// Resolution errors.
var (
	// ErrProviderInactive indicates the provider is missing or deactivated.
	ErrProviderInactive = errors.New("pricing: provider inactive")
	// ErrPricingNotFound indicates no usable pricing exists and no fallback applies.
	ErrPricingNotFound = errors.New("pricing: pricing not found")
	// ErrServiceDisabled indicates the disable_service strategy rejected a request with no pricing.
	ErrServiceDisabled = errors.New("pricing: service disabled")
)
