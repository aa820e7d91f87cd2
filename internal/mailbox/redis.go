package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"AskWorld-Agents/pkg/logger"
)

// RedisConfig 描述 Redis 信箱的连接参数。
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	Prefix    string
	BlockWait time.Duration
}

// RedisQueue 使用 Redis list 实现信箱，每个地址对应一个 key。
type RedisQueue struct {
	client *redis.Client
	prefix string
	wait   time.Duration
	logger *slog.Logger
}

// NewRedisQueue 创建 Redis 信箱实例。
func NewRedisQueue(ctx context.Context, cfg RedisConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return newRedisQueue(client, cfg), nil
}

func newRedisQueue(client *redis.Client, cfg RedisConfig) *RedisQueue {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "askworld:mailbox:"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisQueue{client: client, prefix: prefix, wait: wait, logger: logger.Named("mailbox.redis")}
}

// Key 返回地址对应的 Redis key。
func (q *RedisQueue) Key(address string) string {
	return q.prefix + address
}

// Publish 将消息 LPUSH 到地址对应的 list。
func (q *RedisQueue) Publish(ctx context.Context, address string, env Envelope) error {
	data, err := encode(env)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.Key(address), data).Err(); err != nil {
		return fmt.Errorf("Redis 投递消息失败: %w", err)
	}
	return nil
}

// Consume 通过 BRPOP 从 Redis 获取消息，返回前等待所有工作协程退出。
func (q *RedisQueue) Consume(ctx context.Context, address string, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	key := q.Key(address)
	errCh := make(chan error, workerCount)
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := q.work(ctx, key, handler); err != nil {
				errCh <- err
				cancel()
			}
		}()
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

func (q *RedisQueue) work(ctx context.Context, key string, handler Handler) error {
	for ctx.Err() == nil {
		values, err := q.client.BRPop(ctx, q.wait, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return nil
		case errors.Is(err, redis.ErrClosed):
			return err
		case err != nil:
			return fmt.Errorf("Redis 取消息失败: %w", err)
		}
		if len(values) != 2 {
			continue
		}
		env, err := decode([]byte(values[1]))
		if err != nil {
			q.logger.Warn("丢弃无法解析的消息", slog.String("key", key), slog.Any("error", err))
			continue
		}
		if err := handler(ctx, env); err != nil {
			q.logger.Warn("处理消息失败", slog.String("id", env.ID), slog.Any("error", err))
		}
	}
	return nil
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
