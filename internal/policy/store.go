package policy

import (
	"context"

	xerrors "DelegateGuard/internal/errors"
)

// ErrPolicyNotFound 表示委托人尚未配置策略。
var ErrPolicyNotFound = xerrors.New(CodePolicyNotFound, "策略不存在")

// Store 负责按委托人持久化策略文档及其编译产物。
//
// Put 在写入前完成校验与编译，保证存储中的文档永远可编译；
// Compiled 返回的对象为只读，调用方不得修改。
type Store interface {
	// Put 校验、编译并保存策略文档。
	Put(ctx context.Context, principal string, doc *Document) error
	// Document 返回原始策略文档，不存在时返回 ErrPolicyNotFound。
	Document(ctx context.Context, principal string) (*Document, error)
	// Compiled 返回编译后的策略，不存在时返回 ErrPolicyNotFound。
	Compiled(ctx context.Context, principal string) (*CompiledPolicy, error)
	// Close 释放底层资源。
	Close() error
}
