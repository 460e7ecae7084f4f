package invoker

import "github.com/ceyewan/voteguard/xerrors"

var (
	ErrConfigNil = xerrors.WithCode(xerrors.New("invoker: config is nil"), xerrors.CodeInvalidInput)

	// ErrUnknownPolicy 调用了未定义的策略
	ErrUnknownPolicy = xerrors.WithCode(xerrors.New("invoker: unknown policy"), xerrors.CodeInvalidInput)
)
