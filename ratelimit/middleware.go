package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/voteguard/clog"
	"github.com/ceyewan/voteguard/xerrors"
)

// 响应头
const (
	HeaderLimit = "X-RateLimit-Limit"
	HeaderBurst = "X-RateLimit-Burst"
)

// KeyFunc 从请求中提取限流键，返回空串表示不限流
type KeyFunc func(*gin.Context) string

// ClientIP 默认的限流键
func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// GinMiddleware 创建 Gin 限流中间件。
// 被限流时返回 429；限流器自身出错时放行并记录告警。
func GinMiddleware(limiter Limiter, keyFunc KeyFunc, logger clog.Logger) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	if logger == nil {
		logger = clog.Discard()
	}
	limit := limiter.Limit()
	rateHeader := strconv.FormatFloat(limit.Rate, 'f', -1, 64)
	burstHeader := strconv.Itoa(limit.Burst)

	return func(c *gin.Context) {
		key := keyFunc(c)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		allowed, err := limiter.Allow(ctx, key)
		if err != nil {
			logger.WarnContext(ctx, "rate limiter unavailable, allowing request",
				clog.String("key", key), clog.Error(err))
			c.Next()
			return
		}

		c.Header(HeaderLimit, rateHeader)
		c.Header(HeaderBurst, burstHeader)
		if !allowed {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": ErrRateLimited.Error(),
				"code":  xerrors.CodeRateLimited,
			})
			return
		}
		c.Next()
	}
}
