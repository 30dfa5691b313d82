package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "DelegateGuard/internal/errors"
)

// 执行状态。
const (
	ExecutionStatusConfirmed = "confirmed"
	ExecutionStatusFailed    = "failed"
)

// ExecutionRecord 是一条已上链动作的审计记录。
type ExecutionRecord struct {
	ID           string    `json:"id"`
	EvaluationID string    `json:"evaluation_id,omitempty"`
	Principal    string    `json:"principal"`
	AgentID      string    `json:"agent_id,omitempty"`
	Recipient    string    `json:"recipient,omitempty"`
	Amount       string    `json:"amount,omitempty"`
	TxHash       string    `json:"tx_hash,omitempty"`
	BlockNumber  string    `json:"block_number,omitempty"`
	Status       string    `json:"status"`
	ExecutedAt   time.Time `json:"executed_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// SQLExecutionLog 使用 MySQL 持久化执行记录。
type SQLExecutionLog struct {
	db *sql.DB
}

// NewSQLExecutionLog 建立连接并执行未应用的迁移。
func NewSQLExecutionLog(ctx context.Context, cfg Config) (*SQLExecutionLog, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化执行日志库失败")
	}
	log := &SQLExecutionLog{db: db}
	if err := log.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行数据库迁移失败")
	}
	return log, nil
}

// Insert 写入一条执行记录。ID 为空时自动生成。
func (l *SQLExecutionLog) Insert(ctx context.Context, record *ExecutionRecord) error {
	if record == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "执行记录不能为空")
	}
	if strings.TrimSpace(record.Principal) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "执行记录缺少委托人")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = ExecutionStatusConfirmed
	}
	if record.ExecutedAt.IsZero() {
		record.ExecutedAt = time.Now().UTC()
	}
	record.CreatedAt = time.Now().UTC()

	const query = `INSERT INTO execution_log
        (id, evaluation_id, principal, agent_id, recipient, amount, tx_hash, block_number, status, executed_at, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := l.db.ExecContext(ctx, query,
		record.ID,
		record.EvaluationID,
		strings.ToLower(record.Principal),
		record.AgentID,
		strings.ToLower(record.Recipient),
		record.Amount,
		record.TxHash,
		record.BlockNumber,
		record.Status,
		record.ExecutedAt.Unix(),
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入执行记录失败")
	}
	return nil
}

// ListByPrincipal 返回指定委托人最近的执行记录，按时间倒序。
func (l *SQLExecutionLog) ListByPrincipal(ctx context.Context, principal string, limit int) ([]*ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, evaluation_id, principal, agent_id, recipient, amount, tx_hash, block_number, status, executed_at, created_at
        FROM execution_log WHERE principal = ? ORDER BY executed_at DESC LIMIT ?`
	rows, err := l.db.QueryContext(ctx, query, strings.ToLower(strings.TrimSpace(principal)), limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询执行记录失败")
	}
	defer rows.Close()

	var records []*ExecutionRecord
	for rows.Next() {
		record, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历执行记录失败")
	}
	return records, nil
}

// CountSince 统计指定委托人在给定时间之后的执行次数。
func (l *SQLExecutionLog) CountSince(ctx context.Context, principal string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM execution_log WHERE principal = ? AND executed_at >= ?`
	var count int
	err := l.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(principal)), since.Unix()).Scan(&count)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计执行记录失败")
	}
	return count, nil
}

func scanExecution(rows *sql.Rows) (*ExecutionRecord, error) {
	var (
		record     ExecutionRecord
		executedAt int64
		createdAt  int64
	)
	if err := rows.Scan(
		&record.ID,
		&record.EvaluationID,
		&record.Principal,
		&record.AgentID,
		&record.Recipient,
		&record.Amount,
		&record.TxHash,
		&record.BlockNumber,
		&record.Status,
		&executedAt,
		&createdAt,
	); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析执行记录失败")
	}
	record.ExecutedAt = time.Unix(executedAt, 0).UTC()
	record.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &record, nil
}

// Close 关闭数据库连接。
func (l *SQLExecutionLog) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
