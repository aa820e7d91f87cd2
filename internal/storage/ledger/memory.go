package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	xerrors "AskWorld-Agents/internal/errors"
)

const memoryCapacity = 512

// MemoryStore 在内存中保存最近的回执，配置数据目录时同时追加写入 JSON 行文件。
type MemoryStore struct {
	mu       sync.RWMutex
	dataFile string
	receipts []Receipt
}

// NewMemoryStore 创建内存账本，dataDir 为空时不落盘。
func NewMemoryStore(dataDir string) (*MemoryStore, error) {
	store := &MemoryStore{}
	if dataDir == "" {
		return store, nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建数据目录失败")
	}
	store.dataFile = filepath.Join(dataDir, "receipts.log")
	if err := store.loadFromDisk(); err != nil {
		return nil, err
	}
	return store, nil
}

// Record 以追加写的方式记录回执。
func (m *MemoryStore) Record(_ context.Context, receipt Receipt) error {
	receipt = prepare(receipt)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dataFile != "" {
		file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开回执日志失败")
		}
		defer file.Close()

		encoded, err := json.Marshal(receipt)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化回执失败")
		}
		if _, err := file.Write(append(encoded, '\n')); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入回执日志失败")
		}
	}

	m.receipts = append([]Receipt{receipt}, m.receipts...)
	if len(m.receipts) > memoryCapacity {
		m.receipts = m.receipts[:memoryCapacity]
	}
	return nil
}

// List 返回最近的回执，按时间倒序排列。
func (m *MemoryStore) List(_ context.Context, limit int) ([]Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.receipts) {
		limit = len(m.receipts)
	}
	results := make([]Receipt, limit)
	copy(results, m.receipts[:limit])
	return results, nil
}

// Close 实现 Store 接口。
func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取回执日志失败")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var restored []Receipt
	for scanner.Scan() {
		var receipt Receipt
		if err := json.Unmarshal(scanner.Bytes(), &receipt); err != nil {
			continue
		}
		restored = append([]Receipt{receipt}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析回执日志失败")
	}
	if len(restored) > memoryCapacity {
		restored = restored[:memoryCapacity]
	}
	m.receipts = restored
	return nil
}
