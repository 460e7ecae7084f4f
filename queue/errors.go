package queue

import "github.com/ceyewan/voteguard/xerrors"

var (
	// ErrClosed 队列已关闭
	ErrClosed = xerrors.WithCode(xerrors.New("queue: closed"), xerrors.CodeUnavailable)

	ErrOperationPanic = xerrors.New("queue: operation panicked")
)
