package pricing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/creditstudio/CreditStudio/internal/models"
	"github.com/shopspring/decimal"
)

// Tier names the resolution stage that produced a price.
type Tier string

// Resolution tiers, in precedence order.
const (
	TierExact    Tier = "exact"
	TierPartial  Tier = "partial"
	TierDefault  Tier = "default"
	TierFallback Tier = "fallback"
)

// SelectExact returns the active entry whose conditions are all satisfied by params.
// When several qualify the one with the most conditions wins, so an empty catch-all only
// applies when nothing more specific does. Remaining ties go to the earliest entry.
func SelectExact(entries []models.PricingEntry, params map[string]any) *models.PricingEntry {
	var best *models.PricingEntry
	bestSpecificity := -1
	for i := range entries {
		e := &entries[i]
		if !e.IsActive || !conditionsSatisfied(e.Conditions, params) {
			continue
		}
		if n := len(e.Conditions); n > bestSpecificity {
			best = e
			bestSpecificity = n
		}
	}
	return best
}

// SelectPartial scores active entries with conditions by the number of satisfied keys and
// returns the highest scorer with a score above zero. Ties go to the earliest entry.
func SelectPartial(entries []models.PricingEntry, params map[string]any) *models.PricingEntry {
	var best *models.PricingEntry
	bestScore := 0
	for i := range entries {
		e := &entries[i]
		if !e.IsActive || len(e.Conditions) == 0 {
			continue
		}
		score := 0
		for key, expected := range e.Conditions {
			actual, ok := params[key]
			if ok && conditionMatches(expected, actual) {
				score++
			}
		}
		if score > bestScore {
			best = e
			bestScore = score
		}
	}
	return best
}

// SelectDefault returns the first active entry flagged as default.
func SelectDefault(entries []models.PricingEntry) *models.PricingEntry {
	for i := range entries {
		if entries[i].IsActive && entries[i].IsDefault {
			return &entries[i]
		}
	}
	return nil
}

func conditionsSatisfied(conditions map[string]any, params map[string]any) bool {
	for key, expected := range conditions {
		actual, ok := params[key]
		if !ok || !conditionMatches(expected, actual) {
			return false
		}
	}
	return true
}

// conditionMatches compares a condition value against a parameter. A list condition
// matches when any of its members equals the parameter.
func conditionMatches(expected, actual any) bool {
	if set, ok := expected.([]any); ok {
		for _, candidate := range set {
			if scalarEqual(candidate, actual) {
				return true
			}
		}
		return false
	}
	return scalarEqual(expected, actual)
}

func scalarEqual(a, b any) bool {
	return normalizeScalar(a) == normalizeScalar(b)
}

// normalizeScalar renders a value so that 1, 1.0 and "1" compare equal while other strings compare verbatim.
func normalizeScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		trimmed := strings.TrimSpace(x)
		if d, errParse := decimal.NewFromString(trimmed); errParse == nil {
			return d.String()
		}
		return trimmed
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return decimal.NewFromFloat(x).String()
	case float32:
		return decimal.NewFromFloat32(x).String()
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case json.Number:
		return normalizeScalar(x.String())
	case decimal.Decimal:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
