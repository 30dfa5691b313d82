package state

import (
	"context"
	"time"

	xerrors "DelegateGuard/internal/errors"
)

// 状态存储相关的错误码。
const (
	CodeStateUnavailable xerrors.Code = "STATE_STORE_FAILURE"
)

func init() {
	xerrors.Register(CodeStateUnavailable, xerrors.Attributes{
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
}

// Snapshot 描述某个委托人的执行历史概览。
type Snapshot struct {
	// LastExecution 为最近一次执行的时间，没有历史时为 nil。
	LastExecution *time.Time
	// RecentEvents 为保留窗口内的执行时间，按时间升序排列。
	RecentEvents []time.Time
}

// Tracker 负责记录委托人的执行历史，供冷却规则与异常监控使用。
//
// 实现必须保证同一委托人的并发写入串行化；评估路径只读，
// 任何读失败都会被调用方视为拒绝放行的依据。
type Tracker interface {
	// LastExecution 返回最近一次执行时间，没有历史时返回 (nil, nil)。
	LastExecution(ctx context.Context, principal string) (*time.Time, error)
	// Snapshot 返回保留窗口内的完整历史。
	Snapshot(ctx context.Context, principal string) (Snapshot, error)
	// RecordExecution 记录一次已确认的执行。
	RecordExecution(ctx context.Context, principal string, ts time.Time) error
	// Close 释放底层资源。
	Close() error
}
