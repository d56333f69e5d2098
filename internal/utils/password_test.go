package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

// PasswordTestSuite 密码工具测试套件
type PasswordTestSuite struct {
	suite.Suite
}

// 测试密码哈希
func (suite *PasswordTestSuite) TestHashPassword() {
	hash, err := HashPassword("MySecurePassword123!")
	suite.NoError(err)
	suite.True(strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))
}

// 测试相同密码生成不同哈希
func (suite *PasswordTestSuite) TestHashPasswordUniqueness() {
	hash1, err1 := HashPassword("SamePassword123")
	hash2, err2 := HashPassword("SamePassword123")
	suite.NoError(err1)
	suite.NoError(err2)
	suite.NotEqual(hash1, hash2)
}

// 测试空密码
func (suite *PasswordTestSuite) TestHashEmptyPassword() {
	_, err := HashPassword("")
	suite.Error(err)
}

// 测试密码验证
func (suite *PasswordTestSuite) TestVerifyPassword() {
	hash, err := HashPassword("CorrectPassword456")
	suite.Require().NoError(err)

	valid, err := VerifyPassword("CorrectPassword456", hash)
	suite.NoError(err)
	suite.True(valid)

	valid, err = VerifyPassword("correctpassword456", hash)
	suite.NoError(err)
	suite.False(valid)
}

// 测试小参数配置
func (suite *PasswordTestSuite) TestCustomConfig() {
	cfg := &PasswordConfig{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16}
	hash, err := HashPasswordWithConfig("pw", cfg)
	suite.Require().NoError(err)
	suite.Contains(hash, "m=1024,t=1,p=1")

	valid, err := VerifyPassword("pw", hash)
	suite.NoError(err)
	suite.True(valid)
}

// 测试格式错误的哈希
func (suite *PasswordTestSuite) TestVerifyInvalidHash() {
	cases := []string{
		"",
		"plain-text",
		"$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=1$!!$aGFzaA",
	}
	for _, c := range cases {
		valid, err := VerifyPassword("pw", c)
		suite.Error(err, c)
		suite.False(valid)
	}
}

func TestPasswordTestSuite(t *testing.T) {
	suite.Run(t, new(PasswordTestSuite))
}
