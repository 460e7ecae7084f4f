package trace

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc/stats"
)

// GinMiddleware 返回 api 层的 Gin 跟踪中间件
func GinMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// GRPCServerStatsHandler 返回 gRPC 服务端跟踪处理器
func GRPCServerStatsHandler() stats.Handler {
	return otelgrpc.NewServerHandler()
}

// GRPCClientStatsHandler 返回 gRPC 客户端跟踪处理器，与 invoker.UnaryClientInterceptor 配合使用
func GRPCClientStatsHandler() stats.Handler {
	return otelgrpc.NewClientHandler()
}
