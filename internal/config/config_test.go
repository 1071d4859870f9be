package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinetree/internal/models"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENVIRONMENT", "DATABASE_URL", "TRASH_RETENTION_DAYS", "JWT_ACCESS_TOKEN_EXPIRY", "PREFLIGHT_QUICK"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "3001", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "sqlite://pinetree.db", cfg.DatabaseURL)
	assert.Equal(t, 30*24*time.Hour, cfg.TrashRetention)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenExpiry)
	assert.Equal(t, "0 3 * * *", cfg.TrashSweepCron)
	assert.False(t, cfg.QuickPreflight)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("ENVIRONMENT", "Production")
	t.Setenv("TRASH_RETENTION_DAYS", "7")
	t.Setenv("JWT_ACCESS_TOKEN_EXPIRY", "5m")
	t.Setenv("JWT_REFRESH_TOKEN_EXPIRY", "not-a-duration")
	t.Setenv("PREFLIGHT_QUICK", "true")

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 7*24*time.Hour, cfg.TrashRetention)
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenExpiry)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenExpiry)
	assert.True(t, cfg.QuickPreflight)
}

func TestLoadTierLimits(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		limits, err := LoadTierLimits("")
		require.NoError(t, err)
		assert.Equal(t, models.DefaultTierLimits, limits)
	})

	t.Run("file overrides named tiers", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tiers.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
tiers:
  free:
    max_depth: 3
    max_files_per_tree: 10
    max_image_uploads_per_day: 2
    max_image_bytes: 1024
`), 0o600))

		limits, err := LoadTierLimits(path)
		require.NoError(t, err)
		assert.Equal(t, 3, limits[models.TierFree].MaxDepth)
		assert.Equal(t, int64(1024), limits[models.TierFree].MaxImageBytes)
		assert.Equal(t, models.DefaultTierLimits[models.TierPro], limits[models.TierPro])
		assert.Equal(t, 5, models.DefaultTierLimits[models.TierFree].MaxDepth, "defaults must not be mutated")
	})

	t.Run("unknown tier", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tiers.yaml")
		require.NoError(t, os.WriteFile(path, []byte("tiers:\n  enterprise:\n    max_depth: 1\n"), 0o600))
		_, err := LoadTierLimits(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTierLimits(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tiers.yaml")
		require.NoError(t, os.WriteFile(path, []byte("tiers: [oops"), 0o600))
		_, err := LoadTierLimits(path)
		assert.Error(t, err)
	})
}
