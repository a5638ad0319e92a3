package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/modelflow-ai/modelflow/config"
)

func TestOpen_Sqlite(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:       "sqlite",
		Name:         ":memory:",
		MaxOpenConns: 1,
	}

	db, err := Open(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, Ping(context.Background(), db))

	stats, err := Stats(db)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MaxOpenConnections)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(config.DatabaseConfig{}, zaptest.NewLogger(t))
	assert.Error(t, err)

	_, err = Open(config.DatabaseConfig{Driver: "oracle"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}
