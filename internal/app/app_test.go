package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/creditstudio/CreditStudio/internal/config"
	"github.com/creditstudio/CreditStudio/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const testConfig = `
database:
  dsn: ":memory:"
jwt:
  secret: test
logging:
  level: warn
pricing:
  missing_strategy: fallback
  fallback_credits:
    default: 2
providers:
  - name: echo
    type: echo
    model_type: text
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestBootstrapWiresServicesAndProviders(t *testing.T) {
	rt, errBoot := Bootstrap(context.Background(), config.AppConfig{ConfigPath: writeConfig(t, testConfig)})
	require.NoError(t, errBoot)
	t.Cleanup(func() { _ = rt.Close() })

	require.Equal(t, []string{"echo"}, rt.Providers.Names())

	var p models.Provider
	require.NoError(t, rt.DB.Where("name = ?", "echo").First(&p).Error)
	require.True(t, p.IsActive)

	credits, errResolve := rt.Resolver.Resolve(context.Background(), "text", p.ID, nil)
	require.NoError(t, errResolve)
	require.Equal(t, int64(2), credits)
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rt, errBoot := Bootstrap(context.Background(), config.AppConfig{ConfigPath: writeConfig(t, testConfig)})
	require.NoError(t, errBoot)
	t.Cleanup(func() { _ = rt.Close() })
	router := NewRouter(rt)

	for path, want := range map[string]int{
		"/healthz":    http.StatusOK,
		"/metrics":    http.StatusOK,
		"/v1/balance": http.StatusUnauthorized,
		"/nope":       http.StatusNotFound,
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, want, rec.Code, path)
		if path == "/healthz" {
			require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		}
	}
}

func TestBootstrapRejectsInvalidConfig(t *testing.T) {
	_, errBoot := Bootstrap(context.Background(), config.AppConfig{ConfigPath: writeConfig(t, "jwt:\n  secret: x\n")})
	require.Error(t, errBoot)
}

func TestMigrate(t *testing.T) {
	require.NoError(t, Migrate(context.Background(), config.AppConfig{ConfigPath: writeConfig(t, testConfig)}))
}
