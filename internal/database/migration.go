package database

import (
	"fmt"

	"github.com/wfunc/marco-listener/internal/logger"
	"github.com/wfunc/marco-listener/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate 迁移全局数据库
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}
	return Migrate(DB)
}

// Migrate 迁移表结构并创建索引
func Migrate(db *gorm.DB) error {
	// SQLite 文件库需要迁移锁
	if path := dbFilePath(db); path != "" {
		lockFile, err := acquireMigrationLock(path)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile)
	}

	logger.Info("开始数据库迁移...")

	migrationModels := []interface{}{
		&models.SerialLog{},
	}

	for _, model := range migrationModels {
		if err := db.AutoMigrate(model); err != nil {
			logger.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return err
		}
		logger.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	createIndexes(db)

	logger.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建组合索引，失败只记录
func createIndexes(db *gorm.DB) {
	indexes := map[string]string{
		"idx_serial_logs_port_created_at":   "CREATE INDEX IF NOT EXISTS idx_serial_logs_port_created_at ON serial_logs(port, created_at)",
		"idx_serial_logs_marker_created_at": "CREATE INDEX IF NOT EXISTS idx_serial_logs_marker_created_at ON serial_logs(marker, created_at)",
	}
	for name, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			logger.Warn("创建索引失败", zap.String("index", name), zap.Error(err))
		}
	}
}

// dbFilePath 返回SQLite数据库文件路径，其他驱动和内存库返回空
func dbFilePath(db *gorm.DB) string {
	name := db.Dialector.Name()
	if name != "sqlite" && name != "sqlite3" {
		return ""
	}

	sqlDB, err := db.DB()
	if err != nil {
		return ""
	}
	row := sqlDB.QueryRow("PRAGMA database_list")
	var seq int
	var schema, file string
	if err := row.Scan(&seq, &schema, &file); err != nil {
		return ""
	}
	return file
}
