package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// OK represents a successful operation.
var OK = Register(&Errno{
	Code:      0,
	HTTP:      http.StatusOK,
	GRPCCode:  codes.OK,
	MessageEN: "Success",
	MessageZH: "成功",
})

// ============================================================================
// Common errors (service 00)
// ============================================================================

var (
	ErrBadRequest   = NewRequestErr(ServiceCommon, 0, "Bad request", "请求错误")
	ErrInvalidParam = NewRequestErr(ServiceCommon, 1, "Invalid parameter", "参数无效")

	ErrUnauthorized = NewAuthErr(ServiceCommon, 0, "Unauthorized", "未认证")
	ErrInvalidToken = NewAuthErr(ServiceCommon, 1, "Invalid token", "令牌无效")
	ErrTokenExpired = NewAuthErr(ServiceCommon, 2, "Token expired", "令牌已过期")

	ErrNotFound = NewNotFoundErr(ServiceCommon, 0, "Resource not found", "资源不存在")

	ErrInternal = NewInternalErr(ServiceCommon, 0, "Internal server error", "服务器内部错误")

	ErrServiceUnavailable = NewError(ServiceCommon, CategoryNetwork, 0,
		http.StatusServiceUnavailable, codes.Unavailable, "Service unavailable", "服务不可用")

	ErrRequestTimeout = NewError(ServiceCommon, CategoryTimeout, 0,
		http.StatusRequestTimeout, codes.DeadlineExceeded, "Request timeout", "请求超时")
)
