package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind 枚举了API调用失败的分类
type ErrorKind int

const (
	// ErrTimeout 请求超时 (客户端主动中止)，等价于 status=408
	ErrTimeout ErrorKind = iota
	// ErrNetworkUnavailable 网络不可达 ("Failed to fetch" 一类)，等价于 status=0
	ErrNetworkUnavailable
	// ErrHTTPStatus 后端返回了非2xx状态码
	ErrHTTPStatus
	// ErrCircuitOpen 熔断器打开，请求被短路，从未发出网络调用
	ErrCircuitOpen
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTimeout:
		return "timeout"
	case ErrNetworkUnavailable:
		return "network_unavailable"
	case ErrHTTPStatus:
		return "http_status"
	case ErrCircuitOpen:
		return "circuit_open"
	}
	return "unknown"
}

// APIError 携带了调用后端失败时的全部上下文：分类、状态码、
// 从响应体提取的 detail 信息以及建议的重试间隔。
type APIError struct {
	Kind       ErrorKind
	Status     int           // HTTP状态码；超时为408，网络不可达为0，熔断为503
	Detail     string        // detail/message/error 字段、原始文本或合成消息
	RetryAfter time.Duration // 建议的重试间隔，0表示无建议
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (status=%d, retry after %s): %s", e.Kind, e.Status, e.RetryAfter, e.Detail)
	}
	return fmt.Sprintf("%s (status=%d): %s", e.Kind, e.Status, e.Detail)
}

// NewTimeoutError 构造一个超时错误，retryAfter 为固定建议值
func NewTimeoutError(retryAfter time.Duration) *APIError {
	return &APIError{Kind: ErrTimeout, Status: 408, Detail: "request timed out", RetryAfter: retryAfter}
}

// NewNetworkError 构造一个网络不可达错误
func NewNetworkError(retryAfter time.Duration) *APIError {
	return &APIError{Kind: ErrNetworkUnavailable, Status: 0, Detail: "backend unreachable", RetryAfter: retryAfter}
}

// NewHTTPError 构造一个HTTP状态码错误
func NewHTTPError(status int, detail string, retryAfter time.Duration) *APIError {
	if detail == "" {
		detail = fmt.Sprintf("HTTP error! status: %d", status)
	}
	return &APIError{Kind: ErrHTTPStatus, Status: status, Detail: detail, RetryAfter: retryAfter}
}

// NewCircuitOpenError 构造一个熔断短路错误，retryAfter 为剩余冷却时间
func NewCircuitOpenError(retryAfter time.Duration) *APIError {
	return &APIError{Kind: ErrCircuitOpen, Status: 503, Detail: "signals circuit breaker is open", RetryAfter: retryAfter}
}

// AsAPIError 从错误链中提取 *APIError
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsRateLimited 判断错误是否为HTTP 429
func IsRateLimited(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == ErrHTTPStatus && apiErr.Status == 429
}

// IsTimeout 判断错误是否为请求超时
func IsTimeout(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == ErrTimeout
}

// IsCircuitOpen 判断错误是否为熔断短路
func IsCircuitOpen(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == ErrCircuitOpen
}
