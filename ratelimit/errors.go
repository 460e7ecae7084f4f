package ratelimit

import "github.com/ceyewan/voteguard/xerrors"

var (
	// ErrDisabled 配置未开启限流
	ErrDisabled = xerrors.Newf(xerrors.CodeInvalidInput, "ratelimit: disabled")
	// ErrUnknownMode 未知的限流模式
	ErrUnknownMode = xerrors.Newf(xerrors.CodeInvalidInput, "ratelimit: unknown mode")
	// ErrConnectorNil distributed 模式缺少 Redis 连接器
	ErrConnectorNil = xerrors.Newf(xerrors.CodeInvalidInput, "ratelimit: redis connector is nil")
	// ErrKeyEmpty 限流键为空
	ErrKeyEmpty = xerrors.Newf(xerrors.CodeInvalidInput, "ratelimit: key is empty")
	// ErrInvalidLimit 限流规则或令牌数非法
	ErrInvalidLimit = xerrors.Newf(xerrors.CodeInvalidInput, "ratelimit: rate, burst and n must be positive")
	// ErrRateLimited 请求被限流
	ErrRateLimited = xerrors.Newf(xerrors.CodeRateLimited, "ratelimit: rate limit exceeded")
)
