package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	apperrors "github.com/wfunc/marco-listener/internal/errors"
	"github.com/wfunc/marco-listener/internal/utils"
	"go.uber.org/zap"
)

// AuthServiceTestSuite 认证服务测试套件
type AuthServiceTestSuite struct {
	suite.Suite
	service AuthService
	ctx     context.Context
}

func (suite *AuthServiceTestSuite) SetupSuite() {
	hash, err := utils.HashPasswordWithConfig("s3cret", &utils.PasswordConfig{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32})
	suite.Require().NoError(err)

	suite.service = NewAuthService(hash, utils.NewJWTManager("test-secret", time.Hour), zap.NewNop())
	suite.ctx = context.Background()
}

// 测试登录成功
func (suite *AuthServiceTestSuite) TestLoginSuccess() {
	resp, err := suite.service.Login(suite.ctx, &LoginRequest{Password: "s3cret"})
	suite.Require().NoError(err)
	suite.NotEmpty(resp.AccessToken)
	suite.Equal("Bearer", resp.TokenType)
	suite.InDelta(3600, resp.ExpiresIn, 5)

	claims, err := suite.service.ValidateToken(suite.ctx, resp.AccessToken)
	suite.Require().NoError(err)
	suite.Equal("admin", claims.Subject)
	suite.Equal(utils.RoleAdmin, claims.Role)
	suite.Greater(claims.ExpiresAt, claims.IssuedAt)
}

// 测试密码错误
func (suite *AuthServiceTestSuite) TestLoginWrongPassword() {
	_, err := suite.service.Login(suite.ctx, &LoginRequest{Password: "wrong"})
	suite.True(apperrors.Is(err, apperrors.ErrAuthentication))
}

// 测试未知用户
func (suite *AuthServiceTestSuite) TestLoginUnknownUser() {
	_, err := suite.service.Login(suite.ctx, &LoginRequest{Username: "root", Password: "s3cret"})
	suite.True(apperrors.Is(err, apperrors.ErrAuthentication))
}

// 测试未配置密码
func (suite *AuthServiceTestSuite) TestLoginWithoutPassword() {
	svc := NewAuthService("", utils.NewJWTManager("test-secret", time.Hour), zap.NewNop())
	_, err := svc.Login(suite.ctx, &LoginRequest{Password: "anything"})
	suite.True(apperrors.Is(err, apperrors.ErrPermissionDenied))
}

// 测试无效令牌
func (suite *AuthServiceTestSuite) TestValidateInvalidToken() {
	_, err := suite.service.ValidateToken(suite.ctx, "garbage")
	suite.True(apperrors.Is(err, apperrors.ErrTokenInvalid))
}

func TestAuthServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}
