package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3333", cfg.Port)
	assert.Equal(t, "firebase", cfg.AuthProvider)
	assert.Equal(t, "Asia/Kolkata", cfg.SweepTimezone)
	assert.Equal(t, 200, cfg.SweepPageSize)
	assert.Equal(t, 30*time.Minute, cfg.SweepLockTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.TrialPeriod())
	assert.Equal(t, "Asia/Kolkata", cfg.SweepLocation().String())
}

func TestValidate(t *testing.T) {
	base := Config{
		StoreBackend:  "memory",
		AuthProvider:  "firebase",
		SweepTimezone: "UTC",
		SweepPageSize: 10,
	}
	require.NoError(t, base.Validate())

	pg := base
	pg.StoreBackend = "postgres"
	assert.Error(t, pg.Validate(), "postgres without DATABASE_URL")

	clerk := base
	clerk.AuthProvider = "clerk"
	assert.Error(t, clerk.Validate(), "clerk without secret")

	hour := base
	hour.SweepHour = 24
	assert.Error(t, hour.Validate())

	tz := base
	tz.SweepTimezone = "Mars/Olympus"
	assert.Error(t, tz.Validate())

	backend := base
	backend.StoreBackend = "mongo"
	assert.Error(t, backend.Validate())
}
