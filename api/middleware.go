package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ceyewan/voteguard/clog"
)

// HeaderRequestID 请求 ID 头
const HeaderRequestID = "X-Request-ID"

// requestID 读取或生成请求 ID，写入响应头与 ctx
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(clog.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func accessLog(logger clog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.DebugContext(c.Request.Context(), "http request",
			clog.String("method", c.Request.Method),
			clog.String("route", c.FullPath()),
			clog.Int("status", c.Writer.Status()),
			clog.Duration("latency", time.Since(start)))
	}
}
