package state

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryTracker 在内存中维护执行历史，适用于单实例部署与测试。
type MemoryTracker struct {
	mu        sync.Mutex
	arena     map[string]*principalHistory
	retention time.Duration
}

type principalHistory struct {
	mu     sync.Mutex
	last   *time.Time
	events []time.Time
}

// MemoryOption 调整内存跟踪器的行为。
type MemoryOption func(*MemoryTracker)

// WithRetention 设置历史事件的保留窗口，默认 24 小时。
func WithRetention(d time.Duration) MemoryOption {
	return func(t *MemoryTracker) {
		if d > 0 {
			t.retention = d
		}
	}
}

// NewMemoryTracker 创建内存跟踪器。
func NewMemoryTracker(opts ...MemoryOption) *MemoryTracker {
	t := &MemoryTracker{
		arena:     make(map[string]*principalHistory),
		retention: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var _ Tracker = (*MemoryTracker)(nil)

func (t *MemoryTracker) history(principal string, create bool) *principalHistory {
	key := strings.ToLower(strings.TrimSpace(principal))
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.arena[key]
	if !ok && create {
		h = &principalHistory{}
		t.arena[key] = h
	}
	return h
}

// LastExecution 返回最近一次执行时间。
func (t *MemoryTracker) LastExecution(_ context.Context, principal string) (*time.Time, error) {
	h := t.history(principal, false)
	if h == nil {
		return nil, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return nil, nil
	}
	last := *h.last
	return &last, nil
}

// Snapshot 返回保留窗口内的执行历史。
func (t *MemoryTracker) Snapshot(_ context.Context, principal string) (Snapshot, error) {
	h := t.history(principal, false)
	if h == nil {
		return Snapshot{}, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	snap := Snapshot{}
	if h.last != nil {
		last := *h.last
		snap.LastExecution = &last
	}
	snap.RecentEvents = append(snap.RecentEvents, h.events...)
	return snap, nil
}

// RecordExecution 记录一次执行并裁剪过期事件。
func (t *MemoryTracker) RecordExecution(_ context.Context, principal string, ts time.Time) error {
	h := t.history(principal, true)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil || ts.After(*h.last) {
		stamp := ts
		h.last = &stamp
	}
	h.events = append(h.events, ts)
	cutoff := ts.Add(-t.retention)
	kept := h.events[:0]
	for _, ev := range h.events {
		if !ev.Before(cutoff) {
			kept = append(kept, ev)
		}
	}
	h.events = kept
	return nil
}

// Close 实现 Tracker 接口，内存实现无需释放资源。
func (t *MemoryTracker) Close() error { return nil }
