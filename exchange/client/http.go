package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/perpbot/goperp/pkg/ratelimit"
)

const (
	infoPath     = "/info"
	exchangePath = "/exchange"

	readTimeout     = 15 * time.Second
	mutateTimeout   = 10 * time.Second
	retryBaseWait   = 500 * time.Millisecond
	retryMaxWait    = 8 * time.Second
	readRetryCount  = 3
)

// newReadClient 构建只读调用的 resty 客户端：有界指数退避 + 抖动，
// 429 时优先用服务端的 Retry-After。
// resty 会自动从环境变量读取代理配置（HTTP_PROXY / HTTPS_PROXY）。
func newReadClient(host string) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimSuffix(host, "/")).
		SetTimeout(readTimeout).
		SetRetryCount(readRetryCount).
		SetRetryWaitTime(retryBaseWait).
		SetRetryMaxWaitTime(retryMaxWait).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true // 网络错误/超时
			}
			code := resp.StatusCode()
			return code == http.StatusTooManyRequests || code >= 500
		}).
		SetRetryAfter(func(c *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
				if d, ok := parseRetryAfter(resp); ok {
					return d, nil
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})
}

// newMutateClient 构建变更调用的 resty 客户端。
// 变更请求发出去就可能已经生效，客户端永远不自动重试。
func newMutateClient(host string) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimSuffix(host, "/")).
		SetTimeout(mutateTimeout).
		SetRetryCount(0)
}

func parseRetryAfter(resp *resty.Response) (time.Duration, bool) {
	raw := resp.Header().Get("Retry-After")
	if raw == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

// postJSON 发送一次 POST，统一做限流准入和错误归类。
func postJSON(
	ctx context.Context,
	rc *resty.Client,
	limiter *ratelimit.Manager,
	class ratelimit.Class,
	path string,
	op string,
	body interface{},
	out interface{},
) error {
	if limiter != nil {
		if err := limiter.Wait(ctx, class); err != nil {
			return &NetworkError{Op: op, Err: errors.Wrap(err, "rate limit wait")}
		}
	}

	req := rc.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)

	resp, err := req.Post(path)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}

	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		retryAfter, _ := parseRetryAfter(resp)
		return &RateLimitError{Op: op, RetryAfter: retryAfter}
	case resp.StatusCode() >= 500:
		return &NetworkError{Op: op, Err: fmt.Errorf("server error %d: %s", resp.StatusCode(), truncate(resp.String(), 200))}
	case resp.StatusCode() >= 400:
		return &ValidationError{Op: op, Reason: fmt.Sprintf("%d: %s", resp.StatusCode(), truncate(resp.String(), 200))}
	}

	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return &NetworkError{Op: op, Err: errors.Wrap(err, "decode response")}
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
