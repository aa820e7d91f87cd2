// Package blob defines the content store used by the blob agent and an
// in-memory implementation for tests and local runs.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"sync"

	xerrors "AskWorld-Agents/internal/errors"
)

// DefaultMimeType 是存储无法给出类型时的默认值。
const DefaultMimeType = "application/octet-stream"

// DefaultScannerURL 是 Walrus 测试网浏览器地址。
const DefaultScannerURL = "https://walruscan.com/testnet"

// Store 抽象 blob 的上传、下载与浏览地址。
type Store interface {
	Put(ctx context.Context, data []byte, mimeType string) (string, error)
	Get(ctx context.Context, id string) ([]byte, string, error)
	ViewerURL(id string) string
}

// ViewerURL 拼接浏览器中查看 blob 的地址。
func ViewerURL(scannerBase, id string) string {
	base := strings.TrimRight(scannerBase, "/")
	if base == "" {
		base = DefaultScannerURL
	}
	return base + "/blob/" + id
}

type entry struct {
	data     []byte
	mimeType string
}

// MemoryStore 以内容的 SHA-256 作为 blob ID 保存数据。
type MemoryStore struct {
	mu      sync.RWMutex
	scanner string
	blobs   map[string]entry
}

// NewMemoryStore 创建内存存储，scannerBase 为空时使用默认浏览器地址。
func NewMemoryStore(scannerBase string) *MemoryStore {
	return &MemoryStore{scanner: scannerBase, blobs: make(map[string]entry)}
}

// ContentID 计算数据对应的 blob ID。
func ContentID(data []byte) string {
	sum := sha256.Sum256(data)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Put 保存数据，相同内容返回相同 ID。
func (s *MemoryStore) Put(_ context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "blob 内容为空")
	}
	if mimeType == "" {
		mimeType = DefaultMimeType
	}
	id := ContentID(data)
	copied := append([]byte(nil), data...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		s.blobs[id] = entry{data: copied, mimeType: mimeType}
	}
	return id, nil
}

// Get 读取 blob，不存在时返回 NOT_FOUND。
func (s *MemoryStore) Get(_ context.Context, id string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.blobs[id]
	if !ok {
		return nil, "", xerrors.New(xerrors.CodeNotFound, "blob 不存在", xerrors.WithMetadata("blob_id", id))
	}
	return append([]byte(nil), e.data...), e.mimeType, nil
}

// ViewerURL 返回浏览地址。
func (s *MemoryStore) ViewerURL(id string) string {
	return ViewerURL(s.scanner, id)
}

// Len 返回已保存的 blob 数量。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
