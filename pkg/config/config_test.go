package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, OrderPolicyFree, cfg.Workflow.OrderPolicy)
	assert.Equal(t, "http://localhost:8080", cfg.Client.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Client.Timeout)
	assert.Equal(t, ProviderNoop, cfg.Notifications.Provider)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("WORKFLOW_ORDER_POLICY", "Sequential")
	t.Setenv("ADMIN_API_BASE_URL", "https://admin.example.com/")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example.com , ,https://b.example.com")
	t.Setenv("JWT_EXPIRATION", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, OrderPolicySequential, cfg.Workflow.OrderPolicy)
	assert.Equal(t, "https://admin.example.com", cfg.Client.BaseURL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
}

func TestNormalizeOrderPolicy(t *testing.T) {
	assert.Equal(t, OrderPolicyFree, normalizeOrderPolicy(""))
	assert.Equal(t, OrderPolicyFree, normalizeOrderPolicy("strict-ish"))
	assert.Equal(t, OrderPolicySequential, normalizeOrderPolicy(" SEQUENTIAL "))
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
