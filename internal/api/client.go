package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"crypto-dashboard-go/internal/breaker"
	"crypto-dashboard-go/internal/logger"
	"crypto-dashboard-go/internal/models"
)

// Operation 是后端调用的逻辑操作名。超时等策略按操作名而不是按URL子串匹配来解析。
type Operation string

const (
	OpWatchlist         Operation = "watchlist"
	OpWatchlistMutation Operation = "watchlist_mutation"
	OpDashboardState    Operation = "dashboard_state"
	OpDashboardSnapshot Operation = "dashboard_snapshot"
	OpTopCoins          Operation = "top_coins"
	OpCustomCoins       Operation = "custom_coins"
	OpSignals           Operation = "signals"
	OpAlertRatio        Operation = "alert_ratio"
	OpOrders            Operation = "orders"
	OpOrderMutation     Operation = "order_mutation"
	OpAlertToggle       Operation = "alert_toggle"
	OpConfig            Operation = "config"
	OpTrading           Operation = "trading"
	OpExpectedTP        Operation = "expected_take_profit"
	OpMonitoring        Operation = "monitoring"
)

// operationTimeouts 是按操作名的显式超时表。不同后端操作的延迟差异极大
// (多源聚合行情 vs 简单读取)，单一全局超时要么饿死慢接口，要么让快接口挂太久。
var operationTimeouts = map[Operation]time.Duration{
	OpSignals:           20 * time.Second,
	OpTopCoins:          60 * time.Second,
	OpDashboardState:    180 * time.Second,
	OpDashboardSnapshot: 30 * time.Second,
}

// defaultTimeout 是未在表中列出的操作的超时
const defaultTimeout = 30 * time.Second

// timeoutRetryHint 是超时错误附带的固定重试建议
const timeoutRetryHint = 5 * time.Second

// slowOps 记录已知的慢操作；网络不可达时给它们更长的重试建议
var slowOps = map[Operation]bool{
	OpTopCoins:       true,
	OpDashboardState: true,
}

// networkRetryHint 返回网络不可达时的重试建议
func networkRetryHint(op Operation) time.Duration {
	if slowOps[op] {
		return 30 * time.Second
	}
	return 10 * time.Second
}

// timeoutFor 解析操作的超时时间
func timeoutFor(op Operation) time.Duration {
	if d, ok := operationTimeouts[op]; ok {
		return d
	}
	return defaultTimeout
}

// BaseURLResolver 每次请求时重新解析目标基础地址，确保环境切换能被立即观察到。
// 解析结果从不跨请求缓存。
type BaseURLResolver func() string

// Client 是后端REST API的封装：按操作超时、错误分类与富化、
// 针对signals端点族的熔断，以及同操作请求的先取消后发起。
type Client struct {
	resolveBase BaseURLResolver
	apiKey      string
	httpClient  *http.Client
	breaker     *breaker.CircuitBreaker
	suppress    *logger.Suppressor

	// observe 在每次请求完成后回调（监控指标挂在这里），可为nil
	observe func(op string, err error)

	mu       sync.Mutex
	inflight map[Operation]context.CancelFunc
	idSeq    uint64
}

// NewClient 创建一个后端API客户端。超时由每个请求的context控制，
// 因此 http.Client 本身不设全局超时。
func NewClient(resolver BaseURLResolver, apiKey string, cb *breaker.CircuitBreaker) *Client {
	if cb == nil {
		cb = breaker.New(breaker.DefaultThreshold, breaker.DefaultCooldown)
	}
	return &Client{
		resolveBase: resolver,
		apiKey:      apiKey,
		httpClient:  &http.Client{},
		breaker:     cb,
		suppress:    logger.NewSuppressor(30 * time.Second),
		inflight:    make(map[Operation]context.CancelFunc),
	}
}

// Breaker 暴露熔断器，供监控指标和手动重置使用
func (c *Client) Breaker() *breaker.CircuitBreaker {
	return c.breaker
}

// SetObserver 注册请求结果观察回调，必须在并发使用客户端之前调用
func (c *Client) SetObserver(fn func(op string, err error)) {
	c.observe = fn
}

// beginExclusive 为同一操作实现"先取消旧请求再发新请求"：
// 手动刷新与定时刷新重叠时，旧的在途请求被中止，避免响应乱序覆盖新数据。
func (c *Client) beginExclusive(parent context.Context, op Operation) (context.Context, context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cancel, ok := c.inflight[op]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	c.inflight[op] = cancel
	return ctx, cancel
}

// request 是通用的请求处理函数。成功时将JSON响应解码到out，
// 失败时返回携带分类与重试建议的 *models.APIError。
func (c *Client) request(ctx context.Context, op Operation, method, path string, query url.Values, body interface{}, out interface{}) error {
	err := c.doRequest(ctx, op, method, path, query, body, out)

	// signals端点族的每次调用结果（无论成败）都要喂给熔断器
	if strings.Contains(path, "/signals") {
		c.breaker.Record(err)
	}

	if c.observe != nil {
		c.observe(string(op), err)
	}

	if err != nil {
		// 按 (操作, 消息) 去重，持续故障时30秒内只记录一条
		detail := err.Error()
		c.suppress.Errorw("后端请求失败", string(op)+"|"+detail,
			"operation", op, "method", method, "path", path, "error", detail)
	}

	return err
}

func (c *Client) doRequest(ctx context.Context, op Operation, method, path string, query url.Values, body interface{}, out interface{}) error {
	// signals族先过熔断器：打开时直接短路，不发出网络调用
	if strings.Contains(path, "/signals") {
		if retryAfter, allowed := c.breaker.Allow(); !allowed {
			return models.NewCircuitOpenError(retryAfter)
		}
	}

	// 基础地址每次请求重新解析，从不缓存
	base := strings.TrimRight(c.resolveBase(), "/")
	fullURL := base + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeoutFor(op))
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// 区分超时中止与网络不可达
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return models.NewTimeoutError(timeoutRetryHint)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			// 被同操作的新请求取消，原样传播，调用方据此放弃本次结果
			return ctx.Err()
		}
		return models.NewNetworkError(networkRetryHint(op))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.NewNetworkError(networkRetryHint(op))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := extractDetail(data)
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return models.NewHTTPError(resp.StatusCode, detail, retryAfter)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("解析响应失败 (%s %s): %w", method, path, err)
		}
	}

	return nil
}

// extractDetail 从错误响应体中提取人类可读的信息：
// 优先 detail/message/error 字段，其次原始文本，最后由调用方合成通用消息。
func extractDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var parsed struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Err     string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case parsed.Detail != "":
			return parsed.Detail
		case parsed.Message != "":
			return parsed.Message
		case parsed.Err != "":
			return parsed.Err
		}
	}

	text := strings.TrimSpace(string(body))
	if len(text) > 512 {
		text = text[:512]
	}
	return text
}

// parseRetryAfter 解析 retry-after 响应头，支持秒数和HTTP日期两种格式
func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
