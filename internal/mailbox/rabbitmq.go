package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"AskWorld-Agents/pkg/logger"
)

// RabbitMQConfig 描述 RabbitMQ 信箱的连接参数。
type RabbitMQConfig struct {
	URL        string
	Prefetch   int
	Durable    bool
	AutoDelete bool
}

// RabbitMQQueue 为每个地址声明一个队列，通过默认交换机按队列名投递。
type RabbitMQQueue struct {
	conn     *amqp.Connection
	mu       sync.Mutex
	ch       *amqp.Channel
	declared map[string]bool
	cfg      RabbitMQConfig
	logger   *slog.Logger
}

// NewRabbitMQQueue 创建 RabbitMQ 信箱实例。
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	return &RabbitMQQueue{
		conn:     conn,
		ch:       ch,
		declared: make(map[string]bool),
		cfg:      cfg,
		logger:   logger.Named("mailbox.rabbitmq"),
	}, nil
}

func (q *RabbitMQQueue) declare(ch *amqp.Channel, address string) error {
	_, err := ch.QueueDeclare(address, q.cfg.Durable, q.cfg.AutoDelete, false, false, nil)
	if err != nil {
		return fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}
	return nil
}

// Publish 将消息投递到地址同名的队列。
func (q *RabbitMQQueue) Publish(ctx context.Context, address string, env Envelope) error {
	if q == nil || q.ch == nil {
		return errors.New("RabbitMQ 信箱未初始化")
	}
	body, err := encode(env)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.declared[address] {
		if err := q.declare(q.ch, address); err != nil {
			return err
		}
		q.declared[address] = true
	}
	return q.ch.PublishWithContext(ctx, "", address, false, false, Publishing(env, body))
}

// Publishing 把信封字段映射到 AMQP 消息属性。
func Publishing(env Envelope, body []byte) amqp.Publishing {
	return amqp.Publishing{
		ContentType:   "application/json",
		MessageId:     env.ID,
		CorrelationId: env.CorrelationID,
		ReplyTo:       env.Sender,
		Type:          env.Type,
		Timestamp:     env.SentAt,
		Body:          body,
	}
}

// Consume 使用独立 channel 和手动确认模式消费地址上的队列。
func (q *RabbitMQQueue) Consume(ctx context.Context, address string, workerCount int, handler Handler) error {
	if q == nil || q.conn == nil {
		return errors.New("RabbitMQ 信箱未初始化")
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	defer ch.Close()
	if q.cfg.Prefetch > 0 {
		if err := ch.Qos(q.cfg.Prefetch, 0, false); err != nil {
			return fmt.Errorf("设置 RabbitMQ QOS 失败: %w", err)
		}
	}
	if err := q.declare(ch, address); err != nil {
		return err
	}
	msgs, err := ch.Consume(address, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("订阅 RabbitMQ 队列失败: %w", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						return
					}
					env, err := decode(msg.Body)
					if err != nil {
						q.logger.Warn("丢弃无法解析的消息", slog.String("queue", address), slog.Any("error", err))
						_ = msg.Ack(false)
						continue
					}
					if err := handler(ctx, env); err != nil {
						q.logger.Warn("处理消息失败", slog.String("id", env.ID), slog.Any("error", err))
					}
					_ = msg.Ack(false)
				}
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close 关闭 RabbitMQ 连接。
func (q *RabbitMQQueue) Close() error {
	if q == nil {
		return nil
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
