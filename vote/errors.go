package vote

import "github.com/ceyewan/voteguard/xerrors"

var (
	ErrEntityIDEmpty = xerrors.WithCode(xerrors.New("vote: entity id is empty"), xerrors.CodeInvalidInput)
	ErrInvalidWindow = xerrors.WithCode(xerrors.New("vote: stop_at is before start_at"), xerrors.CodeInvalidInput)
	ErrUnknownStatus = xerrors.WithCode(xerrors.New("vote: unknown status"), xerrors.CodeInvalidInput)
)
