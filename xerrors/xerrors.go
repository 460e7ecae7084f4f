// Package xerrors 提供 voteguard 统一的错误处理工具。
//
// 除了包装与错误码之外，本包定义了远程调用失败的分类码（见 Code* 常量），
// retry 与 breaker 组件只通过这些分类码和 HTTP 状态码识别错误，不关心错误的具体类型。
package xerrors

import (
	"errors"
	"fmt"
)

// 错误码，按重试语义分为四类
const (
	// 瞬时故障：默认可重试
	CodeNetwork      = "NETWORK"
	CodeUnavailable  = "UNAVAILABLE"
	CodeDBConnection = "DB_CONNECTION"
	CodeTimeout      = "TIMEOUT"

	// 客户端故障：立即失败，不重试
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeInvalidInput = "INVALID_INPUT"
	CodeNotFound     = "NOT_FOUND"
	CodeCanceled     = "CANCELED"
	CodeRateLimited  = "RATE_LIMITED"

	// 领域冲突：例如重复投票
	CodeConflict = "CONFLICT"

	// 熔断快速失败：依赖暂不可用，未发起真实调用
	CodeCircuitOpen = "CIRCUIT_OPEN"

	// 部分失败：投票已提交但计票失败
	CodePartialFailure = "PARTIAL_FAILURE"
)

// 通用哨兵错误
var (
	ErrNotFound     = WithCode(errors.New("not found"), CodeNotFound)
	ErrInvalidInput = WithCode(errors.New("invalid input"), CodeInvalidInput)
	ErrUnavailable  = WithCode(errors.New("service unavailable"), CodeUnavailable)
	ErrConflict     = WithCode(errors.New("conflict"), CodeConflict)
)

// Wrap 用上下文信息包装错误，保留错误链。
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 用格式化的上下文信息包装错误。
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// WithCode 用错误码包装错误。
func WithCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &CodedError{Code: code, Cause: err}
}

// Newf 创建一个带错误码的新错误。
func Newf(code string, format string, args ...any) error {
	return &CodedError{Code: code, Cause: fmt.Errorf(format, args...)}
}

// CodedError 带有机器可读错误码的错误。
type CodedError struct {
	Code  string
	Cause error
}

func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("[%s]", e.Code)
}

func (e *CodedError) Unwrap() error {
	return e.Cause
}

// GetCode 从错误链中提取最外层的错误码。
func GetCode(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// HasCode 判断错误链上是否存在指定错误码（不仅仅是最外层）。
func HasCode(err error, code string) bool {
	for err != nil {
		if c, ok := err.(*CodedError); ok && c.Code == code {
			return true
		}
		switch x := err.(type) {
		case interface{ Unwrap() []error }:
			for _, e := range x.Unwrap() {
				if HasCode(e, code) {
					return true
				}
			}
			return false
		case interface{ Unwrap() error }:
			err = x.Unwrap()
		default:
			return false
		}
	}
	return false
}

// StatusError 携带 HTTP 状态码的远程错误
type StatusError struct {
	Status int
	Cause  error
}

func (e *StatusError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("status %d: %v", e.Status, e.Cause)
	}
	return fmt.Sprintf("status %d", e.Status)
}

func (e *StatusError) Unwrap() error {
	return e.Cause
}

// WithStatus 用 HTTP 状态码包装错误。
func WithStatus(err error, status int) error {
	if err == nil {
		return nil
	}
	return &StatusError{Status: status, Cause: err}
}

// GetStatus 从错误链中提取 HTTP 状态码，没有时返回 0。
func GetStatus(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// Must 如果 err 不为 nil，则 panic。仅用于初始化阶段。
func Must[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("must: %v", err))
	}
	return v
}

// Collector 收集多个错误，保留第一个。
type Collector struct {
	err error
}

func (c *Collector) Collect(err error) {
	if err != nil && c.err == nil {
		c.err = err
	}
}

func (c *Collector) Err() error {
	return c.err
}

// MultiError 合并多个错误。
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%v (and %d more errors)", m.Errors[0], len(m.Errors)-1)
}

func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Combine 将多个错误合并为一个。
func Combine(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &MultiError{Errors: nonNil}
	}
}

// 标准库函数再导出
var (
	New    = errors.New
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)
