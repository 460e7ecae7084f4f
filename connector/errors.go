package connector

import "github.com/ceyewan/voteguard/xerrors"

var (
	ErrConfig      = xerrors.WithCode(xerrors.New("connector: invalid config"), xerrors.CodeInvalidInput)
	ErrConnection  = xerrors.WithCode(xerrors.New("connector: connection failed"), xerrors.CodeDBConnection)
	ErrHealthCheck = xerrors.WithCode(xerrors.New("connector: health check failed"), xerrors.CodeDBConnection)
	ErrClosed      = xerrors.WithCode(xerrors.New("connector: already closed"), xerrors.CodeUnavailable)
)
