package mailbox

import (
	"context"
	"log/slog"
	"sync"

	xerrors "AskWorld-Agents/internal/errors"
	"AskWorld-Agents/internal/protocol"
	"AskWorld-Agents/pkg/logger"
)

// Job 执行一条已解析的请求，返回需要回复给发送方的消息，返回 nil 表示不回复。
type Job func(ctx context.Context) protocol.Message

// RequestHandler 在消费协程上解析请求负载，耗时的处理放在返回的 Job 中。
type RequestHandler func(env Envelope) (Job, error)

// Deliverer 接收带有 correlation_id 的响应消息。
type Deliverer interface {
	Deliver(env Envelope) bool
}

// Router 消费本智能体的收件箱：响应交给关联器，请求按类型分发给处理函数。
type Router struct {
	address  string
	producer Producer
	sink     Deliverer
	logger   *slog.Logger

	mu       sync.RWMutex
	handlers map[string]RequestHandler
	inflight sync.WaitGroup
}

// NewRouter 创建路由器，address 是本智能体的收件地址。
func NewRouter(address string, producer Producer, sink Deliverer) *Router {
	return &Router{
		address:  address,
		producer: producer,
		sink:     sink,
		logger:   logger.Named("mailbox.router").With(slog.String("address", address)),
		handlers: make(map[string]RequestHandler),
	}
}

// Address 返回收件地址。
func (r *Router) Address() string {
	return r.address
}

// Handle 注册某种消息类型的处理函数。
func (r *Router) Handle(msgType string, handler RequestHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[msgType] = handler
}

// Register 以强类型方式注册处理函数，负载解析失败的消息会被丢弃。
func Register[Req protocol.Message, Resp protocol.Message](r *Router, fn func(ctx context.Context, req Req) Resp) {
	var zero Req
	r.Handle(zero.MessageType(), func(env Envelope) (Job, error) {
		var req Req
		if err := env.Decode(&req); err != nil {
			return nil, err
		}
		return func(ctx context.Context) protocol.Message { return fn(ctx, req) }, nil
	})
}

// Dispatch 实现 Handler，可直接交给 Consumer.Consume。请求在独立协程中执行，
// 消费协程立即返回继续取信，处理函数等待委托响应时不会占住收件箱。
func (r *Router) Dispatch(ctx context.Context, env Envelope) error {
	if env.CorrelationID != "" {
		if r.sink == nil || !r.sink.Deliver(env) {
			r.logger.Debug("响应未被接收", slog.String("correlation_id", env.CorrelationID), slog.String("type", env.Type))
		}
		return nil
	}

	r.mu.RLock()
	handler, ok := r.handlers[env.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("未知的消息类型，已丢弃", slog.String("type", env.Type), slog.String("sender", env.Sender))
		return nil
	}

	job, err := handler(env)
	if err != nil {
		r.logger.Warn("解析请求失败", slog.String("type", env.Type), slog.String("id", env.ID), slog.Any("error", err))
		return err
	}

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		reply := job(ctx)
		if reply == nil || env.Sender == "" {
			return
		}
		if err := r.Reply(ctx, env, reply); err != nil {
			r.logger.Warn("回复请求失败", slog.String("type", env.Type), slog.String("id", env.ID), slog.Any("error", err))
		}
	}()
	return nil
}

// Wait 等待所有已派发的请求处理完毕。
func (r *Router) Wait() {
	r.inflight.Wait()
}

// Reply 向请求的发送方回复消息，correlation_id 设为请求 ID。
func (r *Router) Reply(ctx context.Context, req Envelope, msg protocol.Message) error {
	if r.producer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置信箱生产者")
	}
	out, err := NewEnvelope("", r.address, msg)
	if err != nil {
		return err
	}
	out.CorrelationID = req.ID
	if err := r.producer.Publish(ctx, req.Sender, out); err != nil {
		return xerrors.Wrap(xerrors.CodeTransportFailure, err, "回复消息失败")
	}
	return nil
}

// Run 消费收件箱直到 ctx 结束，返回前等待处理中的请求。
func (r *Router) Run(ctx context.Context, consumer Consumer, workerCount int) error {
	r.logger.Info("开始消费收件箱", slog.Int("workers", workerCount))
	err := consumer.Consume(ctx, r.address, workerCount, r.Dispatch)
	r.Wait()
	return err
}
