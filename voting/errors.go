package voting

import "github.com/ceyewan/voteguard/xerrors"

var (
	// ErrNotOpen 实体不在投票窗口内
	ErrNotOpen = xerrors.WithCode(xerrors.New("voting: entity is not open"), xerrors.CodeInvalidInput)

	ErrEntityNotFound = xerrors.WithCode(xerrors.New("voting: entity not found"), xerrors.CodeNotFound)
	ErrUnknownItem    = xerrors.WithCode(xerrors.New("voting: unknown item"), xerrors.CodeInvalidInput)
	ErrMissingField   = xerrors.WithCode(xerrors.New("voting: entity, voter and item are required"), xerrors.CodeInvalidInput)

	// ErrPartialVote 选票已记录但计票自增失败。不会整体重试，以免重复计票。
	ErrPartialVote = xerrors.WithCode(xerrors.New("voting: ballot recorded but tally increment failed"), xerrors.CodePartialFailure)
)
