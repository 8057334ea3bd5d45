package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/creditstudio/CreditStudio/internal/config"
	"github.com/creditstudio/CreditStudio/internal/db"
	"github.com/creditstudio/CreditStudio/internal/models"
	"github.com/creditstudio/CreditStudio/internal/pricing"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const sampleCatalog = `
providers:
  - name: gemini
    display_name: Gemini
  - name: pollinations
currency_rates:
  - provider: gemini
    rate: "1.0"
    markup_percentage: "20"
pricing:
  - provider: gemini
    service_type: text
    token_cost: "26"
  - provider: pollinations
    service_type: image
    token_cost: "5"
    conditions:
      resolution: 512x512
  - provider: pollinations
    service_type: image
    token_cost: "10"
    default: true
services:
  - slug: storybook
    name: Storybook
    steps:
      - name: outline
        model_type: text
        provider: gemini
        prompt_template: "Outline a story about {input}"
      - name: cover
        model_type: image
        provider: pollinations
        requires_confirmation: true
        config:
          resolution: 512x512
`

const sampleTOMLCatalog = `
[[providers]]
name = "gemini"

[[currency_rates]]
provider = "gemini"
rate = "1.0"
markup_percentage = "20"

[[pricing]]
provider = "gemini"
service_type = "text"
token_cost = "26"

[[pricing]]
provider = "gemini"
service_type = "image"
token_cost = "3"
[pricing.conditions]
steps = 30

[[services]]
slug = "haiku"
name = "Haiku"

[[services.steps]]
name = "write"
model_type = "text"
provider = "gemini"
`

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, errOpen := db.Open(":memory:")
	require.NoError(t, errOpen)
	require.NoError(t, db.Migrate(conn))
	return conn
}

func loadSample(t *testing.T, body string) *Catalog {
	t.Helper()
	return loadFile(t, "catalog.yaml", body)
}

func loadFile(t *testing.T, name, body string) *Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	c, errLoad := Load(path)
	require.NoError(t, errLoad)
	return c
}

func TestImportBuildsResolvableCatalog(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	sum, errImport := Import(ctx, conn, loadSample(t, sampleCatalog))
	require.NoError(t, errImport)
	require.Equal(t, &Summary{Providers: 2, CurrencyRates: 1, Pricing: 3, Services: 1, Steps: 2}, sum)

	var gemini, pollinations models.Provider
	require.NoError(t, conn.Where("name = ?", "gemini").First(&gemini).Error)
	require.NoError(t, conn.Where("name = ?", "pollinations").First(&pollinations).Error)
	require.Equal(t, "Gemini", gemini.DisplayName)

	cfg := config.PricingConfig{}
	cfg.ApplyDefaults()
	resolver := pricing.NewResolver(conn, cfg)

	text, errText := resolver.Resolve(ctx, "text", gemini.ID, nil)
	require.NoError(t, errText)
	require.Equal(t, int64(32), text)

	image, errImage := resolver.Resolve(ctx, "image", pollinations.ID, map[string]any{"resolution": "512x512"})
	require.NoError(t, errImage)
	require.Equal(t, int64(5), image)

	var steps []models.WorkflowStep
	require.NoError(t, conn.Order("step_order").Find(&steps).Error)
	require.Len(t, steps, 2)
	require.Equal(t, "Outline a story about {input}", steps[0].PromptTemplate)
	require.True(t, steps[1].RequiresConfirmation)
	require.Equal(t, pollinations.ID, steps[1].ProviderID)
}

func TestImportIsRepeatable(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	c := loadSample(t, sampleCatalog)

	_, errFirst := Import(ctx, conn, c)
	require.NoError(t, errFirst)

	c.Services[0].Steps = c.Services[0].Steps[:1]
	_, errSecond := Import(ctx, conn, c)
	require.NoError(t, errSecond)

	var providers, entries, rates, steps int64
	require.NoError(t, conn.Model(&models.Provider{}).Count(&providers).Error)
	require.NoError(t, conn.Model(&models.PricingEntry{}).Count(&entries).Error)
	require.NoError(t, conn.Model(&models.CurrencyRate{}).Count(&rates).Error)
	require.NoError(t, conn.Model(&models.WorkflowStep{}).Count(&steps).Error)
	require.Equal(t, int64(2), providers)
	require.Equal(t, int64(3), entries)
	require.Equal(t, int64(1), rates)
	require.Equal(t, int64(1), steps)
}

func TestImportRollsBackOnUnknownProvider(t *testing.T) {
	conn := openTestDB(t)
	c := loadSample(t, `
providers:
  - name: gemini
pricing:
  - provider: missing
    service_type: text
    token_cost: "1"
`)
	_, errImport := Import(context.Background(), conn, c)
	require.ErrorContains(t, errImport, "unknown provider")

	var n int64
	require.NoError(t, conn.Model(&models.Provider{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestImportTOMLCatalog(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	sum, errImport := Import(ctx, conn, loadFile(t, "catalog.toml", sampleTOMLCatalog))
	require.NoError(t, errImport)
	require.Equal(t, &Summary{Providers: 1, CurrencyRates: 1, Pricing: 2, Services: 1, Steps: 1}, sum)

	var gemini models.Provider
	require.NoError(t, conn.Where("name = ?", "gemini").First(&gemini).Error)

	cfg := config.PricingConfig{}
	cfg.ApplyDefaults()
	resolver := pricing.NewResolver(conn, cfg)

	text, errText := resolver.Resolve(ctx, "text", gemini.ID, nil)
	require.NoError(t, errText)
	require.Equal(t, int64(32), text)

	image, errImage := resolver.Resolve(ctx, "image", gemini.ID, map[string]any{"steps": 30})
	require.NoError(t, errImage)
	require.Equal(t, int64(4), image)
}
