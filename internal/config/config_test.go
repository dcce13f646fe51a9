package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, 0.7, cfg.AliveThreshold)
	assert.Equal(t, 0.6, cfg.ConfidenceThreshold)
	assert.Equal(t, 0.75, cfg.SameUserSimilarity)
	assert.Equal(t, 0.85, cfg.CrossUserSimilarity)
	assert.Equal(t, int64(100), cfg.CatchBasePoints)
	assert.Equal(t, int64(50), cfg.KarmaPoints)
	assert.Equal(t, 2.0, cfg.KarmaRadiusMiles)
	assert.Equal(t, 7*24*time.Hour, cfg.KarmaWindow)
	assert.Equal(t, 3, cfg.PreviewDailyQuota)
	assert.Equal(t, 100, cfg.LedgerPageLimit)
	assert.Equal(t, 5, cfg.LedgerMaxAttempts)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "dynamo")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_DRIVER")
}

func TestLoadRejectsBadThresholds(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("ALIVE_THRESHOLD", "1.5")

	_, err := Load()
	require.Error(t, err)
}

func TestValidateServeNeedsSecret(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	require.Error(t, cfg.ValidateServe())

	cfg.AuthJWTSecret = "s3cret"
	assert.NoError(t, cfg.ValidateServe())
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: 5432, DBName: "d", DBSSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", cfg.DatabaseDSN())
}
