package mailbox

import (
	"context"
	"errors"
	"sync"
)

// MemoryQueue 使用 channel 模拟信箱，每个地址一个缓冲队列，主要用于测试和单进程运行。
type MemoryQueue struct {
	mu     sync.RWMutex
	size   int
	boxes  map[string]chan Envelope
	closed bool
}

// NewMemoryQueue 创建一个内存信箱。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{size: size, boxes: make(map[string]chan Envelope)}
}

func (q *MemoryQueue) box(address string) (chan Envelope, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, errClosed
	}
	ch, ok := q.boxes[address]
	if !ok {
		ch = make(chan Envelope, q.size)
		q.boxes[address] = ch
	}
	return ch, nil
}

var errClosed = errors.New("信箱已关闭")

// Publish 将消息投递到地址对应的队列。发送期间持有读锁，Close 会等待发送结束。
func (q *MemoryQueue) Publish(ctx context.Context, address string, env Envelope) error {
	if _, err := q.box(address); err != nil {
		return err
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return errClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.boxes[address] <- env:
		return nil
	}
}

// Consume 启动指定数量的工作协程消费地址上的消息。
func (q *MemoryQueue) Consume(ctx context.Context, address string, workerCount int, handler Handler) error {
	ch, err := q.box(address)
	if err != nil {
		return err
	}
	if workerCount <= 0 {
		workerCount = 1
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
				case env, ok := <-ch:
					if !ok {
						return
					}
					_ = handler(ctx, env)
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close 关闭所有地址的队列。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	for _, ch := range q.boxes {
		close(ch)
	}
	return nil
}
