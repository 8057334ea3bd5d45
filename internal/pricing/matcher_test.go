package pricing

import (
	"testing"

	"github.com/creditstudio/CreditStudio/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

func entry(id uint64, conds datatypes.JSONMap, isDefault bool) models.PricingEntry {
	return models.PricingEntry{ID: id, Conditions: conds, TokenCost: decimal.NewFromInt(int64(id)), IsDefault: isDefault, IsActive: true}
}

func TestSelectExactPrefersSpecificEntryOverCatchAll(t *testing.T) {
	entries := []models.PricingEntry{
		entry(1, datatypes.JSONMap{}, true),
		entry(2, datatypes.JSONMap{"resolution": "512x512"}, false),
	}
	got := SelectExact(entries, map[string]any{"resolution": "512x512"})
	if got == nil || got.ID != 2 {
		t.Fatalf("expected entry 2, got %+v", got)
	}

	got = SelectExact(entries, map[string]any{"resolution": "1024x1024"})
	if got == nil || got.ID != 1 {
		t.Fatalf("expected catch-all entry 1, got %+v", got)
	}
}

func TestSelectExactRequiresEveryCondition(t *testing.T) {
	entries := []models.PricingEntry{
		entry(1, datatypes.JSONMap{"quality": "hd", "size": "large"}, false),
	}
	if got := SelectExact(entries, map[string]any{"quality": "hd"}); got != nil {
		t.Fatalf("expected no exact match, got %+v", got)
	}
	if got := SelectExact(entries, map[string]any{"quality": "hd", "size": "large", "extra": 1}); got == nil {
		t.Fatalf("expected exact match with extra parameters")
	}
}

func TestSelectExactSetConditionAndNumericEquality(t *testing.T) {
	entries := []models.PricingEntry{
		entry(1, datatypes.JSONMap{"resolution": []any{"512x512", "768x768"}}, false),
		entry(2, datatypes.JSONMap{"steps": float64(30)}, false),
	}
	if got := SelectExact(entries, map[string]any{"resolution": "768x768"}); got == nil || got.ID != 1 {
		t.Fatalf("expected set membership match, got %+v", got)
	}
	if got := SelectExact(entries, map[string]any{"resolution": "1024x1024"}); got != nil {
		t.Fatalf("expected no match outside set, got %+v", got)
	}
	for _, steps := range []any{30, int64(30), "30", 30.0} {
		if got := SelectExact(entries, map[string]any{"steps": steps}); got == nil || got.ID != 2 {
			t.Fatalf("steps=%v (%T): expected entry 2, got %+v", steps, steps, got)
		}
	}
}

func TestSelectExactSkipsInactive(t *testing.T) {
	inactive := entry(1, datatypes.JSONMap{}, false)
	inactive.IsActive = false
	if got := SelectExact([]models.PricingEntry{inactive}, nil); got != nil {
		t.Fatalf("expected inactive entry to be skipped")
	}
}

func TestSelectPartialHighestScoreWins(t *testing.T) {
	entries := []models.PricingEntry{
		entry(1, datatypes.JSONMap{"a": 1}, false),
		entry(2, datatypes.JSONMap{"a": 1, "b": 2}, false),
	}
	got := SelectPartial(entries, map[string]any{"a": 1, "b": 2})
	if got == nil || got.ID != 2 {
		t.Fatalf("expected entry 2, got %+v", got)
	}

	got = SelectPartial(entries, map[string]any{"a": 1, "b": 3, "c": 4})
	if got == nil || got.ID != 1 {
		t.Fatalf("expected first entry on tie, got %+v", got)
	}

	if got := SelectPartial(entries, map[string]any{"z": 1}); got != nil {
		t.Fatalf("expected no partial match for zero score, got %+v", got)
	}
}

func TestSelectPartialIgnoresCatchAll(t *testing.T) {
	entries := []models.PricingEntry{entry(1, datatypes.JSONMap{}, false)}
	if got := SelectPartial(entries, map[string]any{"a": 1}); got != nil {
		t.Fatalf("catch-all entries never score, got %+v", got)
	}
}

func TestSelectDefault(t *testing.T) {
	entries := []models.PricingEntry{
		entry(1, datatypes.JSONMap{"a": 1}, false),
		entry(2, datatypes.JSONMap{"a": 2}, true),
	}
	if got := SelectDefault(entries); got == nil || got.ID != 2 {
		t.Fatalf("expected default entry 2, got %+v", got)
	}
}

func TestConvertCreditsCeilsUpward(t *testing.T) {
	cases := []struct {
		cost, rate, markup, creditRate string
		want                           int64
	}{
		{"26", "1.0", "20", "1.0", 32},
		{"10", "1", "0", "1", 10},
		{"0.001", "1", "0", "1", 1},
		{"1000", "0.002", "50", "0.01", 300},
		{"3", "1", "0", "0", 3},
		{"0", "5", "10", "1", 0},
	}
	for _, tc := range cases {
		got := ConvertCredits(
			decimal.RequireFromString(tc.cost),
			decimal.RequireFromString(tc.rate),
			decimal.RequireFromString(tc.markup),
			decimal.RequireFromString(tc.creditRate),
		)
		if got != tc.want {
			t.Fatalf("ConvertCredits(%s, %s, %s, %s) = %d, want %d", tc.cost, tc.rate, tc.markup, tc.creditRate, got, tc.want)
		}
	}
}
