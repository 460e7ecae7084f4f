package breaker

import "github.com/ceyewan/voteguard/xerrors"

var (
	ErrConfigNil = xerrors.WithCode(xerrors.New("breaker: config is nil"), xerrors.CodeInvalidInput)
	ErrKeyEmpty  = xerrors.WithCode(xerrors.New("breaker: key is empty"), xerrors.CodeInvalidInput)

	// ErrOpenState 熔断快速失败，下游没有被调用
	ErrOpenState = xerrors.WithCode(xerrors.New("breaker: circuit breaker is open"), xerrors.CodeCircuitOpen)
)
