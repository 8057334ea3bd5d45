package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, errParse := Parse([]byte("database:\n  dsn: ':memory:'\n"))
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected default addr, got %q", cfg.Server.Addr)
	}
	if cfg.Pricing.MissingStrategy != MissingStrategyFallback {
		t.Fatalf("expected fallback strategy, got %q", cfg.Pricing.MissingStrategy)
	}
	if cfg.Pricing.DefaultCurrency != "USD" || cfg.Pricing.CreditToCurrencyRate != 1.0 {
		t.Fatalf("unexpected pricing defaults: %+v", cfg.Pricing)
	}
	if !cfg.Pricing.PartialMatchingEnabled() || !cfg.Pricing.DefaultFallbackEnabled() || !cfg.Pricing.LogMissingEnabled() {
		t.Fatalf("expected pricing toggles enabled by default")
	}
	if cfg.Workflow.ProviderTimeout != 120*time.Second {
		t.Fatalf("expected 120s provider timeout, got %s", cfg.Workflow.ProviderTimeout)
	}
	if cfg.Workflow.EstimateCredits["video"] != 20 || cfg.Workflow.EstimateCredits["text"] != 5 {
		t.Fatalf("unexpected estimates: %v", cfg.Workflow.EstimateCredits)
	}
	if cfg.Redis.Enabled() {
		t.Fatalf("redis should be disabled without addr")
	}
}

func TestParseHonoursExplicitValues(t *testing.T) {
	raw := `
database:
  dsn: postgres://localhost/credits
pricing:
  missing_strategy: Exception
  partial_matching: false
  default_currency: eur
  credit_to_currency_rate: 100
  fallback_credits:
    image: 12
workflow:
  provider_timeout: 30s
  estimate_credits:
    image: 50
providers:
  - name: gemini
    type: http_json
    model_type: text
`
	cfg, errParse := Parse([]byte(raw))
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if cfg.Pricing.MissingStrategy != MissingStrategyException {
		t.Fatalf("expected exception strategy, got %q", cfg.Pricing.MissingStrategy)
	}
	if cfg.Pricing.PartialMatchingEnabled() {
		t.Fatalf("partial matching should be disabled")
	}
	if cfg.Pricing.DefaultCurrency != "EUR" || cfg.Pricing.CreditToCurrencyRate != 100 {
		t.Fatalf("unexpected pricing: %+v", cfg.Pricing)
	}
	if cfg.Workflow.ProviderTimeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %s", cfg.Workflow.ProviderTimeout)
	}
	if cfg.Workflow.EstimateCredits["image"] != 50 || cfg.Workflow.EstimateCredits["audio"] != 15 {
		t.Fatalf("estimates not merged: %v", cfg.Workflow.EstimateCredits)
	}
	if cfg.Workflow.LockExpiry != 60*time.Second {
		t.Fatalf("expected lock expiry derived from timeout, got %s", cfg.Workflow.LockExpiry)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"missing dsn":        "pricing:\n  missing_strategy: fallback\n",
		"unknown strategy":   "database:\n  dsn: x.db\npricing:\n  missing_strategy: guess\n",
		"negative fallback":  "database:\n  dsn: x.db\npricing:\n  fallback_credits:\n    text: -1\n",
		"negative estimate":  "database:\n  dsn: x.db\nworkflow:\n  estimate_credits:\n    text: -5\n",
		"duplicate provider": "database:\n  dsn: x.db\nproviders:\n  - name: a\n  - name: A\n",
	}
	for name, raw := range cases {
		if _, errParse := Parse([]byte(raw)); errParse == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadConfigReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if errWrite := os.WriteFile(path, []byte("database:\n  dsn: data/app.db\n"), 0o600); errWrite != nil {
		t.Fatalf("write: %v", errWrite)
	}
	cfg, errLoad := LoadConfig(path)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if cfg.Database.DSN != "data/app.db" {
		t.Fatalf("unexpected dsn %q", cfg.Database.DSN)
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("CREDITSTUDIO_CONFIG", "")
	if got := ResolveConfigPath(""); got != DefaultConfigPath {
		t.Fatalf("expected default path, got %q", got)
	}
	t.Setenv("CREDITSTUDIO_CONFIG", "/etc/cs/config.yaml")
	if got := ResolveConfigPath(""); got != "/etc/cs/config.yaml" {
		t.Fatalf("expected env path, got %q", got)
	}
	if got := ResolveConfigPath("./local.yaml"); got != "local.yaml" {
		t.Fatalf("expected flag path, got %q", got)
	}
}
