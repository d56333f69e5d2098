package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"
)

// JWTTestSuite JWT工具测试套件
type JWTTestSuite struct {
	suite.Suite
	manager *JWTManager
}

func (suite *JWTTestSuite) SetupTest() {
	suite.manager = NewJWTManager("test-secret-key", time.Hour)
}

// 测试默认有效期
func (suite *JWTTestSuite) TestNewJWTManagerDefaultExpiry() {
	manager := NewJWTManager("secret", 0)
	suite.Equal(24*time.Hour, manager.Expiry())
}

// 测试生成和验证令牌
func (suite *JWTTestSuite) TestGenerateAndValidate() {
	token, expiresAt, err := suite.manager.GenerateToken("admin", RoleAdmin)
	suite.Require().NoError(err)
	suite.NotEmpty(token)
	suite.WithinDuration(time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := suite.manager.ValidateToken(token)
	suite.Require().NoError(err)
	suite.Equal("admin", claims.Subject)
	suite.Equal(RoleAdmin, claims.Role)
	suite.Equal(issuer, claims.Issuer)
	suite.NotEmpty(claims.SessionID)
}

// 测试每次生成的会话ID不同
func (suite *JWTTestSuite) TestSessionIDUnique() {
	t1, _, err := suite.manager.GenerateToken("admin", RoleAdmin)
	suite.Require().NoError(err)
	t2, _, err := suite.manager.GenerateToken("admin", RoleAdmin)
	suite.Require().NoError(err)

	c1, err := suite.manager.ValidateToken(t1)
	suite.Require().NoError(err)
	c2, err := suite.manager.ValidateToken(t2)
	suite.Require().NoError(err)
	suite.NotEqual(c1.SessionID, c2.SessionID)
}

// 测试无效令牌
func (suite *JWTTestSuite) TestValidateInvalidToken() {
	_, err := suite.manager.ValidateToken("not.a.token")
	suite.Error(err)

	other := NewJWTManager("other-secret", time.Hour)
	token, _, err := other.GenerateToken("admin", RoleAdmin)
	suite.Require().NoError(err)
	_, err = suite.manager.ValidateToken(token)
	suite.Error(err)
}

// 测试过期令牌
func (suite *JWTTestSuite) TestValidateExpiredToken() {
	now := time.Now()
	claims := &JWTClaims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour)),
			Issuer:    issuer,
			Subject:   "admin",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key"))
	suite.Require().NoError(err)

	_, err = suite.manager.ValidateToken(token)
	suite.ErrorIs(err, ErrExpiredToken)
}

// 测试签发方不匹配
func (suite *JWTTestSuite) TestValidateWrongIssuer() {
	claims := &JWTClaims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    "other-service",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key"))
	suite.Require().NoError(err)

	_, err = suite.manager.ValidateToken(token)
	suite.Error(err)
}

// 测试空密钥
func (suite *JWTTestSuite) TestEmptySecret() {
	manager := NewJWTManager("", time.Hour)
	_, _, err := manager.GenerateToken("admin", RoleAdmin)
	suite.ErrorIs(err, ErrEmptySecret)
	_, err = manager.ValidateToken("x")
	suite.ErrorIs(err, ErrEmptySecret)
}

func TestJWTTestSuite(t *testing.T) {
	suite.Run(t, new(JWTTestSuite))
}
