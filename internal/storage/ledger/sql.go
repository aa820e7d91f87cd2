package ledger

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	xerrors "AskWorld-Agents/internal/errors"
)

// SQLStore 使用关系型数据库存储回执，MySQL 与 SQLite 共用同一套语句。
type SQLStore struct {
	db *sql.DB
}

// NewMySQLStore 连接 MySQL 并执行迁移。
func NewMySQLStore(ctx context.Context, cfg Config) (*SQLStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}
	parsed, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析 MySQL DSN 失败")
	}
	if parsed.Timeout == 0 {
		parsed.Timeout = 5 * time.Second
	}
	cfg.DSN = parsed.FormatDSN()

	db, err := openDatabase(ctx, "mysql", cfg)
	if err != nil {
		return nil, err
	}
	return newSQLStore(ctx, db)
}

// NewSQLiteStore 打开（必要时创建）SQLite 数据库文件并执行迁移。
func NewSQLiteStore(ctx context.Context, cfg Config) (*SQLStore, error) {
	path := strings.TrimSpace(cfg.DSN)
	if path == "" {
		if cfg.DataDir == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "SQLite 路径不能为空")
		}
		path = filepath.Join(cfg.DataDir, "ledger.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建数据目录失败")
		}
	}
	if !strings.Contains(path, "?") {
		path += "?_journal_mode=WAL&_busy_timeout=5000"
	}
	cfg.DSN = path
	cfg.MaxOpenConns = 1
	cfg.MaxIdleConns = 1

	db, err := openDatabase(ctx, "sqlite", cfg)
	if err != nil {
		return nil, err
	}
	return newSQLStore(ctx, db)
}

func newSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	store := &SQLStore{db: db}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Record 写入一条回执。
func (s *SQLStore) Record(ctx context.Context, receipt Receipt) error {
	receipt = prepare(receipt)
	const stmt = `INSERT INTO validation_receipts
        (id, question_id, answer_index, valid, reason, tx_hash, nonce, attempts, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		receipt.ID,
		receipt.QuestionID,
		receipt.AnswerIndex,
		receipt.Valid,
		receipt.Reason,
		receipt.TxHash,
		receipt.Nonce,
		receipt.Attempts,
		receipt.CreatedAt,
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入回执失败")
	}
	return nil
}

// List 返回最近的回执，按时间倒序排列。
func (s *SQLStore) List(ctx context.Context, limit int) ([]Receipt, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, question_id, answer_index, valid, reason, tx_hash, nonce, attempts, created_at
        FROM validation_receipts ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询回执失败")
	}
	defer rows.Close()

	var receipts []Receipt
	for rows.Next() {
		var r Receipt
		if err := rows.Scan(&r.ID, &r.QuestionID, &r.AnswerIndex, &r.Valid, &r.Reason, &r.TxHash, &r.Nonce, &r.Attempts, &r.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析回执失败")
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历回执失败")
	}
	return receipts, nil
}

// Close 关闭连接池。
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func openDatabase(ctx context.Context, driver string, cfg Config) (*sql.DB, error) {
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开数据库失败")
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到数据库")
	}
	return db, nil
}
