package models

import (
	"time"

	"gorm.io/gorm"
)

// SerialLogLevel 日志级别
type SerialLogLevel string

const (
	SerialLogLevelInfo  SerialLogLevel = "INFO"
	SerialLogLevelDebug SerialLogLevel = "DEBUG"
	SerialLogLevelWarn  SerialLogLevel = "WARN"
	SerialLogLevelError SerialLogLevel = "ERROR"
)

// 方向
const (
	DirectionReceive = "RECEIVE"
	DirectionSend    = "SEND"
)

// SerialLog 串口数据日志，每个有数据的轮询周期或每条下发指令一条
type SerialLog struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time      `gorm:"index;not null" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// 基础信息
	Port      string         `gorm:"type:varchar(100);index;not null" json:"port"`     // 串口名 (如 COM9, /dev/ttyACM0)
	Direction string         `gorm:"type:varchar(10);index;not null" json:"direction"` // 方向 (SEND/RECEIVE)
	Level     SerialLogLevel `gorm:"type:varchar(10);default:INFO" json:"level"`       // 日志级别

	// 数据内容
	RawData    string `gorm:"type:text" json:"raw_data,omitempty"` // 解码后的文本
	HexData    string `gorm:"type:text" json:"hex_data,omitempty"` // 十六进制数据
	BytesCount int    `gorm:"default:0" json:"bytes_count"`        // 字节数

	// 识别结果
	Marker      bool   `gorm:"index;default:false" json:"marker"`                   // 是否包含标记串
	Instruction string `gorm:"type:varchar(20);index" json:"instruction,omitempty"` // 指令 (如 0xF001)
	ErrorMsg    string `gorm:"type:text" json:"error_msg,omitempty"`                // 错误信息

	// 关联信息
	SessionID string `gorm:"type:varchar(100);index" json:"session_id,omitempty"` // 进程会话ID

	Timestamp int64 `gorm:"index" json:"timestamp"` // Unix时间戳（毫秒）
}

// TableName 指定表名
func (SerialLog) TableName() string {
	return "serial_logs"
}

// BeforeCreate 创建前的钩子
func (s *SerialLog) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.Timestamp == 0 {
		s.Timestamp = s.CreatedAt.UnixMilli()
	}
	if s.Level == "" {
		s.Level = SerialLogLevelInfo
	}
	return nil
}

// SerialLogQuery 查询参数
type SerialLogQuery struct {
	Port        string         `json:"port,omitempty" form:"port"`
	Direction   string         `json:"direction,omitempty" form:"direction"`
	Level       SerialLogLevel `json:"level,omitempty" form:"level"`
	Contains    string         `json:"contains,omitempty" form:"contains"`
	Instruction string         `json:"instruction,omitempty" form:"instruction"`
	SessionID   string         `json:"session_id,omitempty" form:"session_id"`
	StartTime   *time.Time     `json:"start_time,omitempty" form:"start_time" time_format:"2006-01-02T15:04:05Z07:00"`
	EndTime     *time.Time     `json:"end_time,omitempty" form:"end_time" time_format:"2006-01-02T15:04:05Z07:00"`
	Marker      *bool          `json:"marker,omitempty" form:"marker"`
	HasError    *bool          `json:"has_error,omitempty" form:"has_error"`
	Limit       int            `json:"limit,omitempty" form:"limit"`
	Offset      int            `json:"offset,omitempty" form:"offset"`
	OrderBy     string         `json:"order_by,omitempty" form:"order_by"`
}

// SerialLogStats 统计信息
type SerialLogStats struct {
	TotalCount   int64 `json:"total_count"`
	TotalSend    int64 `json:"total_send"`
	TotalReceive int64 `json:"total_receive"`
	TotalMarkers int64 `json:"total_markers"`
	TotalErrors  int64 `json:"total_errors"`
	TotalBytes   int64 `json:"total_bytes"`
}
