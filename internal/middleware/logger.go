package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/marco-listener/internal/logger"
)

// RequestLogger 记录每个HTTP请求
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.LogRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}
