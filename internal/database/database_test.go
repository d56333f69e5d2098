package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/marco-listener/internal/config"
	apperrors "github.com/wfunc/marco-listener/internal/errors"
	"github.com/wfunc/marco-listener/internal/models"
	gormlogger "gorm.io/gorm/logger"
)

func TestOpenAndMigrateSQLiteFile(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "marco.db")
	db, err := Open(&config.DatabaseConfig{
		Driver:   "sqlite",
		DSN:      dsn,
		LogLevel: "silent",
	})
	require.NoError(t, err)
	defer func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}()

	_, err = os.Stat(filepath.Dir(dsn))
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	assert.True(t, db.Migrator().HasTable(&models.SerialLog{}))
	assert.True(t, db.Migrator().HasIndex(&models.SerialLog{}, "idx_serial_logs_marker_created_at"))

	// 迁移结束后锁文件被释放
	_, err = os.Stat(dsn + ".migration.lock")
	assert.True(t, os.IsNotExist(err))

	// 重复迁移
	require.NoError(t, Migrate(db))
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigValidate))
}

func TestSQLitePath(t *testing.T) {
	assert.Equal(t, "", sqlitePath(":memory:"))
	assert.Equal(t, "", sqlitePath("file::memory:?cache=shared"))
	assert.Equal(t, "./data/marco.db", sqlitePath("./data/marco.db"))
	assert.Equal(t, "data/marco.db", sqlitePath("file:data/marco.db?_busy_timeout=5000"))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, parseLogLevel("silent"))
	assert.Equal(t, gormlogger.Info, parseLogLevel("info"))
	assert.Equal(t, gormlogger.Warn, parseLogLevel(""))
}

func TestMigrationLockContention(t *testing.T) {
	old := lockRetryInterval
	lockRetryInterval = time.Millisecond
	defer func() { lockRetryInterval = old }()

	path := filepath.Join(t.TempDir(), "marco.db")
	first, err := acquireMigrationLock(path)
	require.NoError(t, err)

	_, err = acquireMigrationLock(path)
	assert.Error(t, err)

	releaseMigrationLock(first)
	second, err := acquireMigrationLock(path)
	require.NoError(t, err)
	releaseMigrationLock(second)
}
