package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	xerrors "DelegateGuard/internal/errors"
)

// MySQLStore 使用 MySQL 持久化策略文档，文档本体以 JSON 存储。
type MySQLStore struct {
	db       *sql.DB
	compiler *Compiler
}

// NewMySQLStore 创建 MySQL 策略存储并初始化表结构。
func NewMySQLStore(dsn string, compiler *Compiler) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db, compiler: compiler}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

var _ Store = (*MySQLStore)(nil)

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS policy_documents (
        principal VARCHAR(64) PRIMARY KEY,
        name VARCHAR(128) NOT NULL,
        version VARCHAR(32) NOT NULL,
        document TEXT NOT NULL,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_policy_updated (updated_at)
)`
	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 policy_documents 表失败")
	}
	return nil
}

// Put 校验、编译并保存策略文档。
func (s *MySQLStore) Put(ctx context.Context, principal string, doc *Document) error {
	key := storeKey(principal)
	if key == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "委托人地址不能为空")
	}
	if _, err := s.compiler.Compile(doc); err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化策略文档失败")
	}

	now := time.Now().Unix()
	const query = `INSERT INTO policy_documents (principal, name, version, document, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE name = VALUES(name), version = VALUES(version),
        document = VALUES(document), updated_at = VALUES(updated_at)`
	if _, err := s.db.ExecContext(ctx, query, key, doc.Name, doc.Version, string(raw), now, now); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存策略文档失败")
	}
	return nil
}

// Document 返回原始策略文档。
func (s *MySQLStore) Document(ctx context.Context, principal string) (*Document, error) {
	var raw string
	const query = `SELECT document FROM policy_documents WHERE principal = ?`
	err := s.db.QueryRowContext(ctx, query, storeKey(principal)).Scan(&raw)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, ErrPolicyNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询策略文档失败")
	}
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析策略文档失败")
	}
	return &doc, nil
}

// Compiled 返回编译后的策略。文档在写入时已通过编译，
// 此处的编译失败意味着存储内容被篡改。
func (s *MySQLStore) Compiled(ctx context.Context, principal string) (*CompiledPolicy, error) {
	doc, err := s.Document(ctx, principal)
	if err != nil {
		return nil, err
	}
	return s.compiler.Compile(doc)
}

// Close 关闭数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
