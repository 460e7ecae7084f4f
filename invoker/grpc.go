package invoker

import (
	"context"

	"google.golang.org/grpc"

	"github.com/ceyewan/voteguard/clog"
)

// UnaryClientInterceptor 返回 gRPC 一元调用客户端拦截器，每次调用都按 policy 保护
//
//	conn, _ := grpc.NewClient(target,
//		grpc.WithUnaryInterceptor(inv.UnaryClientInterceptor(invoker.PolicyProfile)))
//
// 超时后才返回的尝试仍可能写入 reply，调用方应只在返回 nil 错误时读取 reply。
func (inv *Invoker) UnaryClientInterceptor(policy string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		inv.logger.DebugContext(ctx, "unary call through invoker",
			clog.String("policy", policy),
			clog.String("method", method))

		_, err := inv.Invoke(ctx, policy, func(ctx context.Context) (any, error) {
			return nil, invoker(ctx, method, req, reply, cc, opts...)
		})
		return err
	}
}
