package retry

import (
	"context"
	"errors"
	"net"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ceyewan/voteguard/xerrors"
)

// Kind 失败分类
type Kind int

const (
	KindUnknown     Kind = iota // 无法识别，默认谓词仍会重试
	KindTransient               // 网络、5xx、数据库连接、超时
	KindClientFault             // 4xx、鉴权失败、参数错误
	KindConflict                // 领域冲突，例如重复投票
	KindCanceled                // 调用方取消
	KindCircuitOpen             // 熔断快速失败
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindClientFault:
		return "client_fault"
	case KindConflict:
		return "conflict"
	case KindCanceled:
		return "canceled"
	case KindCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Classify 依次按错误码、HTTP 状态码、gRPC 状态码、标准库错误识别失败类型
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	switch {
	case errors.Is(err, context.Canceled), xerrors.HasCode(err, xerrors.CodeCanceled):
		return KindCanceled
	case xerrors.HasCode(err, xerrors.CodeCircuitOpen):
		return KindCircuitOpen
	case xerrors.HasCode(err, xerrors.CodeConflict):
		return KindConflict
	case xerrors.HasCode(err, xerrors.CodeUnauthorized),
		xerrors.HasCode(err, xerrors.CodeForbidden),
		xerrors.HasCode(err, xerrors.CodeInvalidInput),
		xerrors.HasCode(err, xerrors.CodeNotFound):
		return KindClientFault
	case xerrors.HasCode(err, xerrors.CodeNetwork),
		xerrors.HasCode(err, xerrors.CodeUnavailable),
		xerrors.HasCode(err, xerrors.CodeDBConnection),
		xerrors.HasCode(err, xerrors.CodeTimeout):
		return KindTransient
	}

	if s := xerrors.GetStatus(err); s != 0 {
		return classifyHTTP(s)
	}
	if s, ok := status.FromError(err); ok && s.Code() != codes.OK {
		if k := classifyGRPC(s.Code()); k != KindUnknown {
			return k
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindUnknown
}

func classifyHTTP(s int) Kind {
	switch {
	case s == http.StatusRequestTimeout, s == http.StatusTooManyRequests:
		return KindTransient
	case s == http.StatusConflict:
		return KindConflict
	case s >= 400 && s < 500:
		return KindClientFault
	case s >= 500:
		return KindTransient
	default:
		return KindUnknown
	}
}

func classifyGRPC(c codes.Code) Kind {
	switch c {
	case codes.Canceled:
		return KindCanceled
	case codes.AlreadyExists:
		return KindConflict
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied,
		codes.Unauthenticated, codes.FailedPrecondition, codes.OutOfRange, codes.Unimplemented:
		return KindClientFault
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return KindTransient
	default:
		return KindUnknown
	}
}

// DefaultRetryable 除了明确不可重试的失败（取消、熔断、冲突、客户端错误）之外都重试
func DefaultRetryable(err error) bool {
	switch Classify(err) {
	case KindTransient, KindUnknown:
		return true
	default:
		return false
	}
}

// TransientOnly 只重试已识别的瞬时故障
func TransientOnly(err error) bool {
	return Classify(err) == KindTransient
}

// Never 从不重试
func Never(error) bool { return false }

// Exclude 在 pred 的基础上排除带有指定错误码的失败
func Exclude(pred Predicate, excluded ...string) Predicate {
	if pred == nil {
		pred = DefaultRetryable
	}
	return func(err error) bool {
		for _, c := range excluded {
			if xerrors.HasCode(err, c) {
				return false
			}
		}
		return pred(err)
	}
}
