// Package mailbox carries addressed envelopes between agents. Drivers share
// the Producer/Consumer contract so the correlator and router do not care
// whether messages travel through channels, Redis lists or RabbitMQ queues.
package mailbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	xerrors "AskWorld-Agents/internal/errors"
	"AskWorld-Agents/internal/protocol"
)

// Envelope 是信箱中传递的消息。请求的 ID 即关联令牌，响应通过 CorrelationID 指回请求。
type Envelope struct {
	ID            string          `json:"id"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Sender        string          `json:"sender"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	SentAt        time.Time       `json:"sent_at"`
}

// NewEnvelope 包装一条协议消息，id 为空时生成新的 UUID。
func NewEnvelope(id, sender string, msg protocol.Message) (Envelope, error) {
	if msg == nil {
		return Envelope{}, xerrors.New(xerrors.CodeInvalidArgument, "消息不能为空")
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化消息失败")
	}
	if id == "" {
		id = uuid.NewString()
	}
	return Envelope{
		ID:      id,
		Sender:  sender,
		Type:    msg.MessageType(),
		Payload: payload,
		SentAt:  time.Now().UTC(),
	}, nil
}

// Decode 将负载解析到 v。
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "消息负载为空")
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析消息负载失败")
	}
	return nil
}

// Handler 处理从信箱取出的消息。
type Handler func(ctx context.Context, env Envelope) error

// Producer 负责向指定地址投递消息。
type Producer interface {
	Publish(ctx context.Context, address string, env Envelope) error
	Close() error
}

// Consumer 负责消费指定地址的消息，直到 ctx 结束。
type Consumer interface {
	Consume(ctx context.Context, address string, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}

func encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化信封失败")
	}
	return data, nil
}

func decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析信封失败")
	}
	return env, nil
}
