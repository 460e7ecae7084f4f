package api

import (
	"net/http"

	"github.com/ceyewan/voteguard/invoker"
	"github.com/ceyewan/voteguard/xerrors"
)

// 对外隐藏细节的错误信息
const (
	msgUnavailable = "service temporarily unavailable"
	msgFailed      = "request failed"
)

// ErrorResponse 错误响应体
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// StatusFor 把错误映射为 HTTP 状态码与响应体。
// 客户端错误返回原始信息，依赖故障只返回概括信息。
func StatusFor(err error) (int, ErrorResponse) {
	code := xerrors.GetCode(err)
	switch {
	case xerrors.Is(err, invoker.ErrUnknownPolicy):
		return http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: xerrors.CodeNotFound}
	case xerrors.HasCode(err, xerrors.CodePartialFailure):
		return http.StatusBadGateway, ErrorResponse{Error: "ballot recorded but tally update failed", Code: xerrors.CodePartialFailure}
	case xerrors.HasCode(err, xerrors.CodeCircuitOpen):
		return http.StatusServiceUnavailable, ErrorResponse{Error: msgUnavailable, Code: xerrors.CodeCircuitOpen}
	case xerrors.HasCode(err, xerrors.CodeRateLimited):
		return http.StatusTooManyRequests, ErrorResponse{Error: err.Error(), Code: xerrors.CodeRateLimited}
	case xerrors.HasCode(err, xerrors.CodeConflict):
		return http.StatusConflict, ErrorResponse{Error: err.Error(), Code: xerrors.CodeConflict}
	case xerrors.HasCode(err, xerrors.CodeInvalidInput):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: xerrors.CodeInvalidInput}
	case xerrors.HasCode(err, xerrors.CodeNotFound):
		return http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: xerrors.CodeNotFound}
	default:
		return http.StatusBadGateway, ErrorResponse{Error: msgFailed, Code: code}
	}
}
