package service

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/wfunc/marco-listener/internal/errors"
	"github.com/wfunc/marco-listener/internal/utils"
	"go.uber.org/zap"
)

const adminUsername = "admin"

// authService 单一管理员账号，密码以argon2id哈希形式保存在配置中
type authService struct {
	passwordHash string
	jwtManager   *utils.JWTManager
	log          *zap.Logger
}

// NewAuthService 创建认证服务
func NewAuthService(passwordHash string, jwtManager *utils.JWTManager, log *zap.Logger) AuthService {
	return &authService{
		passwordHash: passwordHash,
		jwtManager:   jwtManager,
		log:          log,
	}
}

// Login 校验管理员密码并签发令牌
func (s *authService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	if s.passwordHash == "" {
		return nil, apperrors.New(apperrors.ErrPermissionDenied, "管理员密码未配置")
	}
	if req.Username != "" && req.Username != adminUsername {
		s.log.Warn("登录失败：未知用户", zap.String("username", req.Username), zap.String("ip", req.IP))
		return nil, apperrors.New(apperrors.ErrAuthentication)
	}

	ok, err := utils.VerifyPassword(req.Password, s.passwordHash)
	if err != nil {
		s.log.Error("管理员密码哈希无效", zap.Error(err))
		return nil, apperrors.Wrap(err, apperrors.ErrConfigValidate, "security.admin_password")
	}
	if !ok {
		s.log.Warn("登录失败：密码错误", zap.String("ip", req.IP))
		return nil, apperrors.New(apperrors.ErrAuthentication)
	}

	token, expiresAt, err := s.jwtManager.GenerateToken(adminUsername, utils.RoleAdmin)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrAuthentication)
	}

	s.log.Info("管理员登录", zap.String("ip", req.IP))

	return &AuthResponse{
		AccessToken: token,
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
		TokenType:   "Bearer",
	}, nil
}

// ValidateToken 验证令牌
func (s *authService) ValidateToken(ctx context.Context, token string) (*TokenClaims, error) {
	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		if errors.Is(err, utils.ErrExpiredToken) {
			return nil, apperrors.Wrap(err, apperrors.ErrTokenExpired)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrTokenInvalid)
	}

	tc := &TokenClaims{
		Subject:   claims.Subject,
		Role:      claims.Role,
		SessionID: claims.SessionID,
	}
	if claims.IssuedAt != nil {
		tc.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		tc.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return tc, nil
}
