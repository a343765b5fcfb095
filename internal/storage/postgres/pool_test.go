package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/roomsync/internal/config"
)

func TestPoolConfig_AppliesLimits(t *testing.T) {
	poolCfg, err := poolConfig(config.DatabaseConfig{
		Host:            "db.internal",
		Port:            5433,
		User:            "rooms",
		Password:        "secret",
		Name:            "roomsync",
		SSLMode:         "disable",
		MaxConns:        8,
		MinConns:        2,
		MaxConnLifetime: 30 * time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(8), poolCfg.MaxConns)
	assert.Equal(t, int32(2), poolCfg.MinConns)
	assert.Equal(t, 30*time.Minute, poolCfg.MaxConnLifetime)
	assert.Equal(t, "db.internal", poolCfg.ConnConfig.Host)
	assert.Equal(t, uint16(5433), poolCfg.ConnConfig.Port)
	assert.Equal(t, "roomsync", poolCfg.ConnConfig.Database)
}

func TestPoolConfig_ZeroLifetimeKeepsDefault(t *testing.T) {
	poolCfg, err := poolConfig(config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "rooms",
		Name:     "roomsync",
		SSLMode:  "disable",
		MaxConns: 1,
	})
	require.NoError(t, err)
	assert.Positive(t, poolCfg.MaxConnLifetime)
}
