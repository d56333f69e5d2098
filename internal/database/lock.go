package database

import (
	"fmt"
	"os"
	"time"

	"github.com/wfunc/marco-listener/internal/logger"
	"go.uber.org/zap"
)

const (
	lockAttempts = 30
	lockStale    = 5 * time.Minute
)

var lockRetryInterval = time.Second

// acquireMigrationLock 获取迁移锁，同一个SQLite文件同时只允许一个进程迁移
func acquireMigrationLock(dbPath string) (*os.File, error) {
	lockPath := dbPath + ".migration.lock"

	for i := 0; i < lockAttempts; i++ {
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
		if err == nil {
			logger.Debug("获取迁移锁成功", zap.String("lock", lockPath))
			return lockFile, nil
		}

		// 锁文件过旧说明持有者已退出
		if info, err := os.Stat(lockPath); err == nil {
			if time.Since(info.ModTime()) > lockStale {
				logger.Warn("迁移锁文件过期，尝试删除", zap.String("lock", lockPath))
				os.Remove(lockPath)
				continue
			}
		}

		logger.Debug("等待迁移锁...", zap.Int("attempt", i+1))
		time.Sleep(lockRetryInterval)
	}

	return nil, fmt.Errorf("无法获取迁移锁 %s，可能有其他进程正在执行迁移", lockPath)
}

// releaseMigrationLock 释放迁移锁
func releaseMigrationLock(lockFile *os.File) {
	if lockFile == nil {
		return
	}

	lockPath := lockFile.Name()
	lockFile.Close()
	os.Remove(lockPath)
	logger.Debug("释放迁移锁", zap.String("lock", lockPath))
}
