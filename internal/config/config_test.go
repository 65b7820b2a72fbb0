package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAPIFromEnvRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SUPABASE_URL", "https://x.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	_, err := LoadAPIFromEnv()
	require.Error(t, err)
}

func TestLoadAPIFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gangs")
	t.Setenv("SUPABASE_URL", "https://x.supabase.co/")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("PORT", "9000")
	t.Setenv("GANGER_CACHE_SIZE", "not-a-number")
	t.Setenv("GANGER_METRICS_ENABLED", "false")

	cfg, err := LoadAPIFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "https://x.supabase.co", cfg.SupabaseURL)
	assert.Equal(t, 2048, cfg.CacheSize)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.Equal(t, 8, cfg.TxMaxAttempts)
	assert.False(t, cfg.MetricsEnabled)
}

func TestLoadWorkerFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/gangs")
	t.Setenv("GANGER_RECONCILE_EVERY", "2m")
	t.Setenv("GANGER_RECONCILE_FIX", "true")
	t.Setenv("GANGER_RECONCILE_PARALLEL", "0")

	cfg, err := LoadWorkerFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.ReconcileEvery)
	assert.True(t, cfg.ReconcileFix)
	assert.Equal(t, 4, cfg.ReconcileParallel)
}

func TestLoadCLIReadsTOMLThenEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("GNG_API_BASE_URL", "")
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".gng"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".gng", "config.toml"),
		[]byte("api_base_url = \"https://gangs.example.com/\"\n"), 0o600))

	cfg, err := LoadCLI()
	require.NoError(t, err)
	assert.Equal(t, "https://gangs.example.com", cfg.APIBaseURL)

	t.Setenv("GNG_API_BASE_URL", "http://127.0.0.1:9999")
	cfg, err = LoadCLI()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999", cfg.APIBaseURL)
}
