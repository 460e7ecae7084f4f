package metrics

import (
	"net/http"
	"strconv"
)

// 公共标签键
const (
	LabelService     = "service"
	LabelOperation   = "operation"
	LabelMethod      = "method"
	LabelRoute       = "route"
	LabelStatusClass = "status_class"
	LabelOutcome     = "outcome"
	LabelPolicy      = "policy"
)

const OperationHTTPServer = "http.server"

// 公共结果值
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeRejected = "rejected" // 熔断或限流的快速失败，未发起真实调用
)

const UnknownRoute = "unknown"

// HTTPStatusClass 返回 1xx/2xx/3xx/4xx/5xx/unknown
func HTTPStatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

// HTTPOutcome 2xx/3xx 视为成功；429 与 503 是限流或熔断的快速拒绝
func HTTPOutcome(status int) string {
	switch {
	case status >= 200 && status < 400:
		return OutcomeSuccess
	case status == http.StatusTooManyRequests, status == http.StatusServiceUnavailable:
		return OutcomeRejected
	default:
		return OutcomeError
	}
}
