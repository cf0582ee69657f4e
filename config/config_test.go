package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORE_DRIVER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "Europe/London", cfg.App.Timezone)
	assert.NotNil(t, cfg.App.Location)
	assert.Equal(t, 10*time.Second, cfg.Engine.SubmitTimeout)
	assert.Equal(t, 8, cfg.Engine.StatsConcurrency)
	assert.True(t, cfg.IsDevelopment())
	assert.True(t, cfg.Features.DedupeAchievements("any"))
}

func TestLoad_PostgresFromURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/theory?sslmode=disable")
	t.Setenv("STORE_DRIVER", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	_, err := Load()
	assert.ErrorContains(t, err, "STORE_DRIVER")
}

func TestValidate_ProductionNeedsPostgres(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORE_DRIVER", "sqlite")

	_, err := Load()
	assert.ErrorContains(t, err, "must be postgres in production")
}

func TestValidate_LockTTLCoversSubmitTimeout(t *testing.T) {
	t.Setenv("SUBMIT_TIMEOUT", "30s")
	t.Setenv("LOCK_TTL", "5s")

	_, err := Load()
	assert.ErrorContains(t, err, "LOCK_TTL")
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("X_BOOL", "notabool")
	t.Setenv("X_LIST", " a, ,b ")
	t.Setenv("X_FLOAT", "0.25")

	assert.True(t, getEnvBool("X_BOOL", true))
	assert.Equal(t, []string{"a", "b"}, getEnvStringSlice("X_LIST", nil))
	assert.Equal(t, 0.25, getEnvFloat("X_FLOAT", 1))
	assert.Equal(t, 7, getEnvInt("X_MISSING", 7))
}

func TestFeatureFlags(t *testing.T) {
	t.Setenv("FEATURE_SCORING_SPEED_BONUS", "false")
	ff := LoadFeatureFlags()

	assert.False(t, ff.SpeedBonus("s-1"))
	assert.True(t, ff.ConcurrentStats("s-1"))

	ff.SetStudentOverride("s-1", FeatureScoringSpeedBonus, true)
	assert.True(t, ff.SpeedBonus("s-1"))
	assert.False(t, ff.SpeedBonus("s-2"))

	require.NoError(t, ff.SetRolloutPercent(FeatureProgressCache, 0))
	assert.False(t, ff.ProgressCache("s-3"))
	assert.ErrorIs(t, ff.SetRolloutPercent("nope", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureProgressCache, 101), ErrInvalidRolloutPercent)
}

func TestFeatureFlags_RolloutIsStable(t *testing.T) {
	ff := NewFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureStatsConcurrent, 50))

	enabled := 0
	for i := 0; i < 1000; i++ {
		id := "student-" + time.Duration(i).String()
		first := ff.ConcurrentStats(id)
		assert.Equal(t, first, ff.ConcurrentStats(id))
		if first {
			enabled++
		}
	}
	assert.InDelta(t, 500, enabled, 100)
	assert.False(t, ff.ConcurrentStats(""))
}
