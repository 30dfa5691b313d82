package signal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"DelegateGuard/pkg/logger"
)

// GasProvider 提供当前 gas 价格快照。
type GasProvider interface {
	Fetch(ctx context.Context) (*GasSnapshot, error)
}

// TelemetryProvider 提供外部安全与赎回遥测快照。
type TelemetryProvider interface {
	Fetch(ctx context.Context) (*TelemetrySnapshot, error)
}

// Fetcher 并发抓取全部信号源。单个信号源失败或超时只会降级为
// "不可用" 快照，绝不会阻塞或中断整次评估。
type Fetcher struct {
	gas       GasProvider
	telemetry TelemetryProvider
	timeout   time.Duration
	clock     func() time.Time
}

// FetcherOption 定义可选配置。
type FetcherOption func(*Fetcher)

// WithGasProvider 配置 gas 信号源。
func WithGasProvider(p GasProvider) FetcherOption {
	return func(f *Fetcher) {
		f.gas = p
	}
}

// WithTelemetryProvider 配置遥测信号源。
func WithTelemetryProvider(p TelemetryProvider) FetcherOption {
	return func(f *Fetcher) {
		f.telemetry = p
	}
}

// WithFetchTimeout 设置单个信号源的抓取超时。
func WithFetchTimeout(timeout time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if timeout > 0 {
			f.timeout = timeout
		}
	}
}

// WithClock 注入时钟，主要用于测试。
func WithClock(clock func() time.Time) FetcherOption {
	return func(f *Fetcher) {
		if clock != nil {
			f.clock = clock
		}
	}
}

// NewFetcher 构造 Fetcher。
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		timeout: 3 * time.Second,
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// FetchAll 并发抓取所有已配置的信号源并合并为一个 Set。
// 时钟信号无外部依赖，始终可用。
func (f *Fetcher) FetchAll(ctx context.Context) Set {
	now := f.clock().UTC()
	set := Set{
		Clock: &ClockSnapshot{
			Timestamp: now,
			Hour:      now.Hour(),
			Weekday:   int(now.Weekday()),
			IsWeekend: now.Weekday() == time.Sunday || now.Weekday() == time.Saturday,
		},
	}

	var wg sync.WaitGroup
	if f.gas != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set.Gas = f.fetchGas(ctx, now)
		}()
	}
	if f.telemetry != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set.Telemetry = f.fetchTelemetry(ctx, now)
		}()
	}
	wg.Wait()
	return set
}

func (f *Fetcher) fetchGas(ctx context.Context, now time.Time) *GasSnapshot {
	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	snapshot, err := f.gas.Fetch(fetchCtx)
	if err != nil {
		logger.L().Warn("gas 信号抓取失败", slog.Any("error", err))
		return &GasSnapshot{Timestamp: now, Err: err.Error()}
	}
	if snapshot == nil {
		return &GasSnapshot{Timestamp: now, Err: "empty gas snapshot"}
	}
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = now
	}
	return snapshot
}

func (f *Fetcher) fetchTelemetry(ctx context.Context, now time.Time) *TelemetrySnapshot {
	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	snapshot, err := f.telemetry.Fetch(fetchCtx)
	if err != nil {
		logger.L().Warn("遥测信号抓取失败", slog.Any("error", err))
		return &TelemetrySnapshot{Timestamp: now, Err: err.Error()}
	}
	if snapshot == nil {
		return &TelemetrySnapshot{Timestamp: now, Err: "empty telemetry snapshot"}
	}
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = now
	}
	return snapshot
}
