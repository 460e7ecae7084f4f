package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
)

// GinHTTPMiddleware 记录每个请求的 RED 指标，route 取 gin 的路由模板
func GinHTTPMiddleware(httpMetrics *HTTPServerMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpMetrics == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			// 未命中路由时收敛为 unknown，原始 Path 会导致高基数
			route = UnknownRoute
		}

		httpMetrics.Observe(c.Request.Context(), c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
