package repository

import (
	"time"

	apperrors "github.com/wfunc/marco-listener/internal/errors"
	"github.com/wfunc/marco-listener/internal/models"
	"gorm.io/gorm"
)

// 允许的排序字段，其余一律回退到默认排序
var serialLogOrders = map[string]string{
	"created_at":      "created_at ASC",
	"created_at desc": "created_at DESC",
	"created_at asc":  "created_at ASC",
	"id":              "id ASC",
	"id desc":         "id DESC",
	"bytes_count":     "bytes_count ASC",
}

// SerialLogRepository 串口日志仓库
type SerialLogRepository struct {
	db *gorm.DB
}

// NewSerialLogRepository 创建串口日志仓库
func NewSerialLogRepository(db *gorm.DB) *SerialLogRepository {
	return &SerialLogRepository{
		db: db,
	}
}

// Create 创建日志记录
func (r *SerialLogRepository) Create(log *models.SerialLog) error {
	if err := r.db.Create(log).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseInsert)
	}
	return nil
}

// CreateBatch 批量创建日志记录
func (r *SerialLogRepository) CreateBatch(logs []*models.SerialLog) error {
	if len(logs) == 0 {
		return nil
	}
	if err := r.db.CreateInBatches(logs, 100).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseInsert)
	}
	return nil
}

// GetByID 根据ID获取日志
func (r *SerialLogRepository) GetByID(id uint) (*models.SerialLog, error) {
	var log models.SerialLog
	err := r.db.First(&log, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "serial log %d", id)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	return &log, nil
}

// GetBySessionID 根据会话ID获取日志
func (r *SerialLogRepository) GetBySessionID(sessionID string) ([]*models.SerialLog, error) {
	var logs []*models.SerialLog
	err := r.db.Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}

// Query 查询日志
func (r *SerialLogRepository) Query(query *models.SerialLogQuery) ([]*models.SerialLog, int64, error) {
	db := r.db.Model(&models.SerialLog{})

	// 构建查询条件
	if query.Port != "" {
		db = db.Where("port = ?", query.Port)
	}
	if query.Direction != "" {
		db = db.Where("direction = ?", query.Direction)
	}
	if query.Level != "" {
		db = db.Where("level = ?", query.Level)
	}
	if query.Contains != "" {
		db = db.Where("raw_data LIKE ?", "%"+query.Contains+"%")
	}
	if query.Instruction != "" {
		db = db.Where("instruction = ?", query.Instruction)
	}
	if query.SessionID != "" {
		db = db.Where("session_id = ?", query.SessionID)
	}
	if query.StartTime != nil {
		db = db.Where("created_at >= ?", *query.StartTime)
	}
	if query.EndTime != nil {
		db = db.Where("created_at <= ?", *query.EndTime)
	}
	if query.Marker != nil {
		db = db.Where("marker = ?", *query.Marker)
	}
	if query.HasError != nil && *query.HasError {
		db = db.Where("error_msg IS NOT NULL AND error_msg != ''")
	}

	// 获取总数
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}

	// 排序
	orderBy, ok := serialLogOrders[query.OrderBy]
	if !ok {
		orderBy = "created_at DESC"
	}
	db = db.Order(orderBy)

	// 分页
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}
	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}

	// 查询数据
	var logs []*models.SerialLog
	if err := db.Find(&logs).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}

	return logs, total, nil
}

// GetStats 获取统计信息
func (r *SerialLogRepository) GetStats(startTime, endTime *time.Time) (*models.SerialLogStats, error) {
	stats := &models.SerialLogStats{}

	scoped := func() *gorm.DB {
		db := r.db.Model(&models.SerialLog{})
		if startTime != nil {
			db = db.Where("created_at >= ?", *startTime)
		}
		if endTime != nil {
			db = db.Where("created_at <= ?", *endTime)
		}
		return db
	}

	if err := scoped().Count(&stats.TotalCount).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}

	// 发送/接收统计
	if err := scoped().Where("direction = ?", models.DirectionSend).
		Count(&stats.TotalSend).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	stats.TotalReceive = stats.TotalCount - stats.TotalSend

	if err := scoped().Where("marker = ?", true).
		Count(&stats.TotalMarkers).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}

	// 错误统计
	if err := scoped().Where("error_msg IS NOT NULL AND error_msg != ''").
		Count(&stats.TotalErrors).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}

	var totalBytes struct {
		Total int64
	}
	if err := scoped().Select("COALESCE(SUM(bytes_count), 0) as total").
		Scan(&totalBytes).Error; err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseQuery)
	}
	stats.TotalBytes = totalBytes.Total

	return stats, nil
}

// GetLatest 获取最新的日志记录，port 为空时不过滤
func (r *SerialLogRepository) GetLatest(limit int, port string) ([]*models.SerialLog, error) {
	var logs []*models.SerialLog
	db := r.db.Order("created_at DESC").Order("id DESC").Limit(limit)
	if port != "" {
		db = db.Where("port = ?", port)
	}
	err := db.Find(&logs).Error
	return logs, err
}

// GetMarkerLogs 获取包含标记串的日志
func (r *SerialLogRepository) GetMarkerLogs(startTime, endTime *time.Time, limit int) ([]*models.SerialLog, error) {
	var logs []*models.SerialLog
	db := r.db.Where("marker = ?", true)

	if startTime != nil {
		db = db.Where("created_at >= ?", *startTime)
	}
	if endTime != nil {
		db = db.Where("created_at <= ?", *endTime)
	}

	err := db.Order("created_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// GetErrorLogs 获取错误日志
func (r *SerialLogRepository) GetErrorLogs(limit int) ([]*models.SerialLog, error) {
	var logs []*models.SerialLog
	err := r.db.Where("error_msg IS NOT NULL AND error_msg != ''").
		Or("level = ?", models.SerialLogLevelError).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// DeleteOldLogs 删除旧日志
func (r *SerialLogRepository) DeleteOldLogs(beforeTime time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", beforeTime).Delete(&models.SerialLog{})
	if result.Error != nil {
		return 0, apperrors.Wrap(result.Error, apperrors.ErrDatabaseDelete)
	}
	return result.RowsAffected, nil
}

// CleanupLogs 清理日志（保留最近N天的数据）
func (r *SerialLogRepository) CleanupLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, apperrors.New(apperrors.ErrInvalidParam, "retention days must be greater than 0")
	}
	beforeTime := time.Now().AddDate(0, 0, -retentionDays)
	return r.DeleteOldLogs(beforeTime)
}
