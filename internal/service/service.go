package service

import (
	"time"

	"github.com/wfunc/marco-listener/internal/config"
	"github.com/wfunc/marco-listener/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services 服务集合
type Services struct {
	Auth      AuthService
	SerialLog *SerialLogService // 未启用数据库时为 nil
}

// NewServices 创建服务集合，db 可以为 nil
func NewServices(db *gorm.DB, security *config.SecurityConfig, log *zap.Logger) *Services {
	jwtManager := utils.NewJWTManager(
		security.JWT.Secret,
		time.Duration(security.JWT.ExpireHours)*time.Hour,
	)

	services := &Services{
		Auth: NewAuthService(security.AdminPassword, jwtManager, log),
	}
	if db != nil {
		services.SerialLog = NewSerialLogService(db)
	}
	return services
}

// Close 关闭所有服务
func (s *Services) Close() {
	if s.SerialLog != nil {
		s.SerialLog.Close()
	}
}
