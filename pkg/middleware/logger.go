package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LoggerMiddleware 请求日志中间件
func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		method := c.Request.Method

		c.Next()

		// 过滤规则：
		// 1. 过滤监控与流式路径（/metrics, /ws, 本地录音文件）
		// 2. 过滤一般的 GET 请求（状态轮询太频繁，只记录写操作）
		shouldLog := true

		if strings.Contains(path, "/metrics") ||
			strings.Contains(path, "/ws") ||
			strings.Contains(path, "/recordings/") ||
			strings.Contains(path, "/healthz") ||
			strings.Contains(path, "/favicon.ico") {
			shouldLog = false
		}

		if method == "GET" && shouldLog {
			shouldLog = false
		}

		if shouldLog {
			end := time.Now()
			latency := end.Sub(start)
			logger.Info("Request",
				zap.Int("status", c.Writer.Status()),
				zap.String("method", method),
				zap.String("path", path),
				zap.String("query", query),
				zap.String("ip", c.ClientIP()),
				zap.String("user-agent", c.Request.UserAgent()),
				zap.Duration("latency", latency),
			)
		}
	}
}
