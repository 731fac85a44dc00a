package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"magicstream/internal/shared/config"
)

func newMockGorm(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestMigrateConstraints(t *testing.T) {
	db, mock := newMockGorm(t)
	mock.ExpectExec(`DROP CONSTRAINT IF EXISTS chk_users_role`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`ADD CONSTRAINT chk_users_role`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DROP CONSTRAINT IF EXISTS chk_users_refresh_token_hash`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`ADD CONSTRAINT chk_users_refresh_token_hash`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, MigrateConstraints(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateConstraintsStopsOnError(t *testing.T) {
	db, mock := newMockGorm(t)
	mock.ExpectExec(`DROP CONSTRAINT`).WillReturnError(errors.New("permission denied"))

	assert.Error(t, MigrateConstraints(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetupClosesPoolWhenMigrationFails(t *testing.T) {
	db, mock := newMockGorm(t)
	mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).WillReturnError(errors.New("permission denied"))
	mock.ExpectClose()

	cfg := &config.Config{}
	cfg.JWT.TokenStore = config.TokenStoreMemory

	h, err := setup(cfg, db)
	assert.Nil(t, h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to run migrations")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthCheck(t *testing.T) {
	db, mock := newMockGorm(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	h := &DB{PostgreSQL: db, Redis: rdb}

	mock.ExpectPing()
	require.NoError(t, h.HealthCheck(context.Background()))

	mock.ExpectPing()
	mr.Close()
	assert.ErrorContains(t, h.HealthCheck(context.Background()), "redis ping failed")

	mock.ExpectPing().WillReturnError(errors.New("db down"))
	assert.ErrorContains(t, h.HealthCheck(context.Background()), "PostgreSQL ping failed")

	mock.ExpectClose()
	assert.NoError(t, h.Close())
}
