package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/creditstudio/CreditStudio/internal/security"
	"github.com/stretchr/testify/require"
)

const cliConfig = `
database:
  dsn: "%s"
jwt:
  secret: cli-secret
logging:
  level: error
pricing:
  missing_strategy: exception
providers:
  - name: echo
    type: echo
    model_type: text
`

const cliCatalog = `
providers:
  - name: echo
pricing:
  - provider: echo
    service_type: text
    token_cost: "7"
`

func writeCLIConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := strings.Replace(cliConfig, "%s", filepath.Join(dir, "creditstudio.db"), 1)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func executeCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	cfg := writeCLIConfig(t)
	out, err := executeCLI(t, "--config", cfg, "migrate")
	require.NoError(t, err)
	require.Contains(t, out, "migrated")
}

func TestEnvFileSelectsConfig(t *testing.T) {
	cfg := writeCLIConfig(t)
	envPath := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("CREDITSTUDIO_CONFIG="+cfg+"\n"), 0o600))
	t.Setenv("CREDITSTUDIO_CONFIG", "")

	out, err := executeCLI(t, "--env-file", envPath, "migrate")
	require.NoError(t, err)
	require.Contains(t, out, "migrated")
}

func TestCreditsAddAndShow(t *testing.T) {
	cfg := writeCLIConfig(t)

	out, err := executeCLI(t, "--config", cfg, "credits", "add", "--user", "7", "--amount", "50")
	require.NoError(t, err)
	require.Contains(t, out, "user 7: credits=50 available=50")

	_, err = executeCLI(t, "--config", cfg, "credits", "add", "--user", "7", "--amount", "5", "--type", "bonus", "--description", "welcome")
	require.NoError(t, err)

	out, err = executeCLI(t, "--config", cfg, "credits", "show", "--user", "7")
	require.NoError(t, err)
	require.Contains(t, out, "credits=55 reserved=0 available=55")
	require.Contains(t, out, "transactions: 2")
	require.Contains(t, out, "bonus\t5\t50->55\twelcome")
}

func TestCreditsAddRejectsDebitType(t *testing.T) {
	cfg := writeCLIConfig(t)
	_, err := executeCLI(t, "--config", cfg, "credits", "add", "--user", "7", "--amount", "5", "--type", "debit")
	require.Error(t, err)
	require.Contains(t, err.Error(), "--type must be credit or bonus")
}

func TestCreditsShowWithoutBalance(t *testing.T) {
	cfg := writeCLIConfig(t)
	out, err := executeCLI(t, "--config", cfg, "credits", "show", "--user", "99")
	require.NoError(t, err)
	require.Contains(t, out, "user 99: no balance")
}

func TestCatalogImportThenQuote(t *testing.T) {
	cfg := writeCLIConfig(t)
	catalogPath := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(cliCatalog), 0o600))

	out, err := executeCLI(t, "--config", cfg, "catalog", "import", catalogPath)
	require.NoError(t, err)
	require.Contains(t, out, "providers=1 rates=0 pricing=1")

	out, err = executeCLI(t, "--config", cfg, "quote", "--service-type", "text", "--provider", "echo")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "7 credits"), out)

	out, err = executeCLI(t, "--config", cfg, "quote", "--service-type", "text", "--provider", "echo", "--json")
	require.NoError(t, err)
	require.Contains(t, out, `"credits": 7`)
}

func TestQuoteUnknownProvider(t *testing.T) {
	cfg := writeCLIConfig(t)
	_, err := executeCLI(t, "--config", cfg, "quote", "--service-type", "text", "--provider", "nope")
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown provider "nope"`)
}

func TestTokenIssuesParseableJWT(t *testing.T) {
	cfg := writeCLIConfig(t)
	out, err := executeCLI(t, "--config", cfg, "token", "--user", "42", "--name", "ada")
	require.NoError(t, err)

	claims, err := security.ParseToken("cli-secret", strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, uint64(42), claims.UserID)
	require.Equal(t, "ada", claims.Name)
}
