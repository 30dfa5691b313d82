package policy

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	xerrors "DelegateGuard/internal/errors"
)

// MemoryStore 在内存中保存策略，适用于单实例部署与测试。
type MemoryStore struct {
	mu       sync.RWMutex
	compiler *Compiler
	entries  map[string]*storeEntry
}

type storeEntry struct {
	document *Document
	compiled *CompiledPolicy
}

// NewMemoryStore 创建内存策略存储。
func NewMemoryStore(compiler *Compiler) *MemoryStore {
	return &MemoryStore{
		compiler: compiler,
		entries:  make(map[string]*storeEntry),
	}
}

var _ Store = (*MemoryStore)(nil)

func storeKey(principal string) string {
	return strings.ToLower(strings.TrimSpace(principal))
}

// Put 校验、编译并保存策略文档。
func (s *MemoryStore) Put(ctx context.Context, principal string, doc *Document) error {
	if storeKey(principal) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "委托人地址不能为空")
	}
	compiled, err := s.compiler.Compile(doc)
	if err != nil {
		return err
	}
	clone, err := cloneDocument(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[storeKey(principal)] = &storeEntry{document: clone, compiled: compiled}
	return nil
}

// Document 返回原始策略文档的副本。
func (s *MemoryStore) Document(_ context.Context, principal string) (*Document, error) {
	s.mu.RLock()
	entry, ok := s.entries[storeKey(principal)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrPolicyNotFound
	}
	return cloneDocument(entry.document)
}

// Compiled 返回编译后的策略。
func (s *MemoryStore) Compiled(_ context.Context, principal string) (*CompiledPolicy, error) {
	s.mu.RLock()
	entry, ok := s.entries[storeKey(principal)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrPolicyNotFound
	}
	return entry.compiled, nil
}

// Close 实现 Store 接口。
func (s *MemoryStore) Close() error { return nil }

// cloneDocument 通过序列化往返得到文档的深拷贝。
func cloneDocument(doc *Document) (*Document, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化策略文档失败")
	}
	var clone Document
	if err := json.Unmarshal(raw, &clone); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "反序列化策略文档失败")
	}
	return &clone, nil
}
