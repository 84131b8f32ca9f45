package client

import (
	"fmt"
	"time"
)

// 传输层错误分类。执行链路按类型决定可否重试：
// 网络/限流只对只读调用重试，校验错误和交易所拒单一律不重试。

// NetworkError 网络错误/超时/5xx（只读调用可重试）
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RateLimitError 429 限流，RetryAfter 为服务端建议的等待时间（可能为 0）
type RateLimitError struct {
	Op         string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: %s (retry after %s)", e.Op, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited: %s", e.Op)
}

// ValidationError 调用方/配置错误（不可重试）
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Op, e.Reason)
}

// ExchangeRejected 交易所明确拒绝（该笔不可重试），Reason 保留交易所原文
type ExchangeRejected struct {
	Op     string
	Reason string
}

func (e *ExchangeRejected) Error() string {
	return fmt.Sprintf("exchange rejected: %s: %s", e.Op, e.Reason)
}
