package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "file::memory:")
	t.Setenv("DB_DRIVER", "sqlite")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, time.Second, cfg.DeliveryDelay)
	assert.True(t, cfg.AdminsCanAddMembers)
	assert.Equal(t, 64, cfg.WSSendBuffer)
	assert.Equal(t, "chat-realtime", cfg.ServiceName)
	assert.False(t, cfg.DebugRoutes)
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/chat")
	t.Setenv("DELIVERY_DELAY", "250ms")
	t.Setenv("ADMINS_CAN_ADD_MEMBERS", "false")
	t.Setenv("WS_RATE_BURST", "5")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 250*time.Millisecond, cfg.DeliveryDelay)
	assert.False(t, cfg.AdminsCanAddMembers)
	assert.Equal(t, 5, cfg.WSRateBurst)
}

func TestParseRejectsInvalid(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("DB_DRIVER", "mysql")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DRIVER")
	assert.Contains(t, err.Error(), "DB_DSN is required")
}

func TestParseRejectsMalformedDuration(t *testing.T) {
	t.Setenv("DB_DSN", "file::memory:")
	t.Setenv("DELIVERY_DELAY", "soon")

	_, err := Parse()
	require.Error(t, err)
}
