package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "https://swtt4qvvptprbix33gretpwtn40leddi.lambda-url.us-east-1.on.aws", cfg.APIBaseURL)
	assert.Equal(t, 10, cfg.PageSize)
	assert.Equal(t, "ems_session", cfg.Session.CookieName)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.False(t, cfg.DB.Enabled())
	assert.Empty(t, cfg.Queue.URL)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 5, cfg.RateLimit.Capacity)
	assert.True(t, cfg.Cache.Methods["GET"])
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "production")
	t.Setenv("API_BASE_URL", "http://localhost:9000/")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("DB_HOST", "mysql")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	t.Setenv("CACHE_METHODS", "get, head")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "http://localhost:9000", cfg.APIBaseURL)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
	assert.True(t, cfg.DB.Enabled())
	assert.Equal(t, 5*time.Second, cfg.RateLimit.TTL)
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, cfg.Cache.Methods)
}

func TestLoadReportsEveryProblem(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("APP_ENV", "staging")
	t.Setenv("API_BASE_URL", "/relative")
	t.Setenv("API_TIMEOUT", "soon")
	t.Setenv("SESSION_SECURE", "maybe")
	t.Setenv("TENANT_PAGE_SIZE", "0")

	_, err := Load()
	require.Error(t, err)
	errs := multierr.Errors(err)
	assert.Len(t, errs, 5)
	for _, key := range []string{"APP_ENV", "API_BASE_URL", "API_TIMEOUT", "SESSION_SECURE", "TENANT_PAGE_SIZE"} {
		assert.ErrorContains(t, err, key)
	}
}
