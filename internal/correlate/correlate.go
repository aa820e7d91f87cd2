// Package correlate pairs a delegated request with its response. Loopback
// HTTP targets are called synchronously; every other target goes through the
// mailbox with a fresh correlation token and the caller waits for the
// envelope that carries it back.
package correlate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"AskWorld-Agents/internal/mailbox"
	"AskWorld-Agents/internal/observability/metrics"
	"AskWorld-Agents/internal/protocol"
	"AskWorld-Agents/pkg/logger"
)

// Kind 是委托调用的结果类别。
type Kind string

const (
	KindDelivered Kind = "delivered"
	KindTimeout   Kind = "timeout"
	KindTransport Kind = "transport"
	KindHTTP      Kind = "http"
	KindDecode    Kind = "decode"
)

// Status 描述一次委托调用的结果，失败从不以 error 形式抛出。
type Status struct {
	Kind   Kind
	Detail string
}

// OK 表示收到了可解析的响应。
func (s Status) OK() bool {
	return s.Kind == KindDelivered
}

func (s Status) String() string {
	if s.Detail != "" {
		return s.Detail
	}
	return string(s.Kind)
}

// Target 是委托对象：HTTP 地址或信箱地址，Name 用于错误提示。
type Target struct {
	Address string
	Name    string
}

const (
	strategyHTTP    = "http"
	strategyMailbox = "mailbox"

	expiredTTL = 10 * time.Minute
)

// Config 配置关联器。
type Config struct {
	Address    string
	Producer   mailbox.Producer
	HTTPHosts  []string
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

type pendingCall struct {
	respType string
	ch       chan mailbox.Envelope
}

// Correlator 维护未完成的委托调用，令牌只会被消费一次。
type Correlator struct {
	address    string
	producer   mailbox.Producer
	httpClient *http.Client
	httpHosts  map[string]bool
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingCall
	expired map[string]time.Time
}

var _ mailbox.Deliverer = (*Correlator)(nil)

// New 创建关联器。
func New(cfg Config) *Correlator {
	hosts := make(map[string]bool, len(cfg.HTTPHosts))
	for _, h := range cfg.HTTPHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts[h] = true
		}
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Correlator{
		address:    cfg.Address,
		producer:   cfg.Producer,
		httpClient: client,
		httpHosts:  hosts,
		metrics:    cfg.Metrics,
		logger:     logger.Named("correlate"),
		pending:    make(map[string]*pendingCall),
		expired:    make(map[string]time.Time),
	}
}

// UsesHTTP 判断目标是否走同步 HTTP：scheme 为 http/https 且主机是本机或在白名单中。
func (c *Correlator) UsesHTTP(address string) bool {
	u, err := url.Parse(strings.TrimSpace(address))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || c.httpHosts[host] {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Pending 返回未完成的调用数量。
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Delegate 把请求发送给目标并等待类型为 Resp 的响应。
func Delegate[Req protocol.Message, Resp protocol.Message](ctx context.Context, c *Correlator, target Target, req Req, timeout time.Duration) (Resp, Status) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	strategy := strategyMailbox
	if c.UsesHTTP(target.Address) {
		strategy = strategyHTTP
	}

	start := time.Now()
	var (
		resp   Resp
		status Status
	)
	if strategy == strategyHTTP {
		resp, status = delegateHTTP[Resp](ctx, c, target, req, timeout)
	} else {
		resp, status = delegateMailbox[Resp](ctx, c, target, req, timeout)
	}
	c.metrics.RecordDelegation(strategy, string(status.Kind), time.Since(start))

	attrs := []any{
		slog.String("target", target.Address),
		slog.String("strategy", strategy),
		slog.String("request", req.MessageType()),
		slog.String("status", status.String()),
		slog.Duration("elapsed", time.Since(start)),
	}
	if status.OK() {
		logger.Audit().Info("delegation completed", attrs...)
	} else {
		logger.Audit().Warn("delegation failed", attrs...)
	}
	return resp, status
}

func delegateHTTP[Resp protocol.Message](ctx context.Context, c *Correlator, target Target, req protocol.Message, timeout time.Duration) (Resp, Status) {
	var resp Resp
	body, err := json.Marshal(req)
	if err != nil {
		return resp, Status{Kind: KindDecode, Detail: fmt.Sprintf("encode request: %v", err)}
	}

	started := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, target.Address, bytes.NewReader(body))
	if err != nil {
		return resp, Status{Kind: KindTransport, Detail: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(callCtx, err) {
			return resp, timeoutStatus(time.Since(started))
		}
		c.logger.Error("连接委托目标失败", slog.String("target", target.Address), slog.Any("error", err))
		return resp, Status{Kind: KindTransport, Detail: fmt.Sprintf("Connection error - make sure %s is running", target.name())}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return resp, Status{Kind: KindHTTP, Detail: fmt.Sprintf("HTTP %d", httpResp.StatusCode)}
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		if isTimeout(callCtx, err) {
			return resp, timeoutStatus(time.Since(started))
		}
		return resp, Status{Kind: KindDecode, Detail: fmt.Sprintf("invalid response: %v", err)}
	}
	return resp, Status{Kind: KindDelivered}
}

func delegateMailbox[Resp protocol.Message](ctx context.Context, c *Correlator, target Target, req protocol.Message, timeout time.Duration) (Resp, Status) {
	var resp Resp
	if c.producer == nil {
		return resp, Status{Kind: KindTransport, Detail: "mailbox transport not configured"}
	}

	token := uuid.NewString()
	env, err := mailbox.NewEnvelope(token, c.address, req)
	if err != nil {
		return resp, Status{Kind: KindDecode, Detail: err.Error()}
	}

	call := &pendingCall{respType: resp.MessageType(), ch: make(chan mailbox.Envelope, 1)}
	c.mu.Lock()
	c.pending[token] = call
	c.mu.Unlock()

	started := time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	if err := c.producer.Publish(ctx, target.Address, env); err != nil {
		c.expire(token)
		return resp, Status{Kind: KindTransport, Detail: fmt.Sprintf("mailbox publish to %s failed: %v", target.Address, err)}
	}

	select {
	case reply := <-call.ch:
		if err := reply.Decode(&resp); err != nil {
			return resp, Status{Kind: KindDecode, Detail: fmt.Sprintf("invalid response: %v", err)}
		}
		return resp, Status{Kind: KindDelivered}
	case <-timer.C:
		c.expire(token)
		return resp, timeoutStatus(time.Since(started))
	case <-ctx.Done():
		c.expire(token)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return resp, timeoutStatus(time.Since(started))
		}
		return resp, Status{Kind: KindTransport, Detail: ctx.Err().Error()}
	}
}

// Deliver 把响应交给等待中的调用。过期、重复或类型不符的响应被丢弃并计数。
func (c *Correlator) Deliver(env mailbox.Envelope) bool {
	token := env.CorrelationID
	c.mu.Lock()
	call, ok := c.pending[token]
	if ok && call.respType == env.Type {
		delete(c.pending, token)
		c.markExpiredLocked(token)
		c.mu.Unlock()
		call.ch <- env
		return true
	}
	_, late := c.expired[token]
	c.mu.Unlock()

	reason := "unknown token"
	switch {
	case ok:
		reason = "unexpected response type"
	case late:
		reason = "token expired or already consumed"
	}
	c.logger.Warn("丢弃响应", slog.String("correlation_id", token), slog.String("type", env.Type),
		slog.String("sender", env.Sender), slog.String("reason", reason))
	logger.Audit().Warn("late delivery dropped", slog.String("correlation_id", token), slog.String("reason", reason))
	c.metrics.RecordLateDelivery(env.Type)
	return false
}

func (c *Correlator) expire(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, token)
	c.markExpiredLocked(token)
}

func (c *Correlator) markExpiredLocked(token string) {
	now := time.Now()
	for t, at := range c.expired {
		if now.Sub(at) > expiredTTL {
			delete(c.expired, t)
		}
	}
	c.expired[token] = now
}

func (t Target) name() string {
	if t.Name != "" {
		return t.Name
	}
	return "the target agent"
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// timeoutStatus 报告实际等待的时长：整秒或不足一秒时的毫秒数。
func timeoutStatus(waited time.Duration) Status {
	if waited < time.Second {
		return Status{Kind: KindTimeout, Detail: fmt.Sprintf("timeout after %dms", waited.Milliseconds())}
	}
	return Status{Kind: KindTimeout, Detail: fmt.Sprintf("timeout after %ds", int(waited.Round(time.Second).Seconds()))}
}
