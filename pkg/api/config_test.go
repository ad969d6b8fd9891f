package api_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gematik/zero-rar/pkg/api"
	"github.com/gematik/zero-rar/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ISSUER_BASE_URL", "https://tenant.example.com/")
	t.Setenv("AUDIENCE", "https://expenses-api")
	t.Setenv("API_PORT", "8002")
	t.Setenv("API_URL", "")
	t.Setenv("REQUIRED_SCOPES", "read:reports write:reports")
	t.Setenv("LEDGER_MODE", "purchases")
	t.Setenv("INITIAL_BALANCE", "")
	t.Setenv("LEDGER_SEED", "false")

	cfg, err := api.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8002", cfg.Address)
	assert.Equal(t, "http://localhost:8002", cfg.URL)
	assert.Equal(t, "https://tenant.example.com", cfg.PEP.AuthzIssuer)
	assert.Equal(t, []string{"read:reports", "write:reports"}, cfg.RequiredScopes)
	assert.Equal(t, ledger.ModePurchases, cfg.Ledger.Mode)
	assert.False(t, cfg.Ledger.Seed)
	assert.Equal(t, float64(1000), cfg.Ledger.InitialBalance)
}

func TestLoadConfigFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
address: ":9000"
url: http://api.local
pep:
  authz_issuer: https://file.example.com
  audience: file-audience
ledger:
  initial_balance: 500
`), 0o600))

	t.Setenv("CONFIG_PATH", path)
	t.Setenv("API_PORT", "")
	t.Setenv("API_URL", "")
	t.Setenv("ISSUER_BASE_URL", "")
	t.Setenv("AUDIENCE", "env-audience")
	t.Setenv("REQUIRED_SCOPES", "")
	t.Setenv("LEDGER_MODE", "")
	t.Setenv("INITIAL_BALANCE", "")
	t.Setenv("LEDGER_SEED", "")

	cfg, err := api.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Address)
	assert.Equal(t, "http://api.local", cfg.URL)
	assert.Equal(t, "https://file.example.com", cfg.PEP.AuthzIssuer)
	assert.Equal(t, "env-audience", cfg.PEP.Audience)
	assert.Equal(t, float64(500), cfg.Ledger.InitialBalance)
}

func TestLoadConfigRequiresIssuer(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ISSUER_BASE_URL", "")
	t.Setenv("AUDIENCE", "x")

	_, err := api.LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsBadMode(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ISSUER_BASE_URL", "https://tenant.example.com")
	t.Setenv("AUDIENCE", "x")
	t.Setenv("LEDGER_MODE", "bogus")

	_, err := api.LoadConfig()
	assert.Error(t, err)
}
