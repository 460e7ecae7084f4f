package retry

import (
	"context"

	"github.com/ceyewan/voteguard/xerrors"
)

// ErrAttemptTimeout 单次尝试超过 Policy.Timeout，默认可重试
var ErrAttemptTimeout = xerrors.WithCode(xerrors.Wrap(context.DeadlineExceeded, "attempt timed out"), xerrors.CodeTimeout)

// ErrOperationPanic 被包装的操作发生 panic
var ErrOperationPanic = xerrors.New("operation panicked")

func canceled(err error) error {
	return xerrors.WithCode(err, xerrors.CodeCanceled)
}
