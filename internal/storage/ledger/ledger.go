package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "AskWorld-Agents/internal/errors"
)

// Receipt 表示一次成功提交的 validateAnswer 交易。
type Receipt struct {
	ID          string `json:"id"`
	QuestionID  string `json:"question_id"`
	AnswerIndex string `json:"answer_index"`
	Valid       bool   `json:"valid"`
	Reason      string `json:"reason"`
	TxHash      string `json:"tx_hash"`
	Nonce       uint64 `json:"nonce"`
	Attempts    int    `json:"attempts"`
	CreatedAt   int64  `json:"created_at"`
}

// Store 抽象回执的持久化接口。
type Store interface {
	Record(ctx context.Context, receipt Receipt) error
	List(ctx context.Context, limit int) ([]Receipt, error)
	Close() error
}

// Config 描述账本的存储驱动。
type Config struct {
	Driver          string
	DSN             string
	DataDir         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open 根据驱动名称创建账本。
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemoryStore(cfg.DataDir)
	case "mysql":
		return NewMySQLStore(ctx, cfg)
	case "sqlite":
		return NewSQLiteStore(ctx, cfg)
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("暂不支持的账本驱动: %s", cfg.Driver))
	}
}

// prepare 补全回执的 ID 与创建时间。
func prepare(receipt Receipt) Receipt {
	if receipt.ID == "" {
		receipt.ID = uuid.NewString()
	}
	if receipt.CreatedAt == 0 {
		receipt.CreatedAt = time.Now().Unix()
	}
	return receipt
}
