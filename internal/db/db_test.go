package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"laundromat-backend/config"
	"laundromat-backend/internal/model"
)

func TestInit_SQLite(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Driver:                 config.DriverSQLite,
		DSN:                    "file:" + filepath.Join(t.TempDir(), "test.db"),
		ConnMaxLifetimeMinutes: 1,
	}

	gormDB, err := Init(cfg, zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	for _, table := range []any{&model.Machine{}, &model.Balance{}, &model.HistoryEntry{}, &model.Recipient{}} {
		assert.True(t, gormDB.Migrator().HasTable(table))
	}
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestInit_MemoryDriverHasNoDatabase(t *testing.T) {
	_, err := Init(&config.DatabaseConfig{Driver: config.DriverMemory}, zap.NewNop())
	assert.Error(t, err)
}
