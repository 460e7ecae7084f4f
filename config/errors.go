package config

import "github.com/ceyewan/voteguard/xerrors"

// ErrValidationFailed 配置校验失败
var ErrValidationFailed = xerrors.WithCode(xerrors.New("configuration validation failed"), xerrors.CodeInvalidInput)

// IsInvalidInput 判断错误是否为配置格式无效或校验失败
func IsInvalidInput(err error) bool {
	return xerrors.HasCode(err, xerrors.CodeInvalidInput)
}
