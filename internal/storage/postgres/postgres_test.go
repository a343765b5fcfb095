package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/roomsync/internal/config"
	"github.com/cory-johannsen/roomsync/internal/storage/postgres"
	"github.com/cory-johannsen/roomsync/internal/testutil"
)

func TestPool_Health(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	assert.NoError(t, pc.Pool.Health(context.Background(), time.Second))
	assert.NoError(t, pc.Pool.Ping(context.Background()))
}

func TestPool_PingAfterClose(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	repo := postgres.NewAccountRepository(pc.Pool)
	require.NoError(t, repo.Ping(context.Background()))

	pc.Pool.Close()
	assert.Error(t, pc.Pool.Ping(context.Background()))
	assert.Error(t, repo.Ping(context.Background()))
}

func TestNewPool_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := postgres.NewPool(ctx, config.DatabaseConfig{
		Host:     "127.0.0.1",
		Port:     1,
		User:     "nobody",
		Password: "nothing",
		Name:     "none",
		SSLMode:  "disable",
		MaxConns: 1,
	})
	require.Error(t, err)
}
