package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"DelegateGuard/internal/observability/alerting"
	"DelegateGuard/pkg/logger"
)

// 告警类别。
const (
	KindGlobalVelocity    = "global-velocity"
	KindPrincipalVelocity = "principal-velocity"
)

// 告警严重级别。
const (
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// SecurityAlert 描述一次异常行为告警。
type SecurityAlert struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Severity     string    `json:"severity"`
	Message      string    `json:"message"`
	Principal    string    `json:"principal,omitempty"`
	TriggerCount int       `json:"trigger_count"`
	CreatedAt    time.Time `json:"created_at"`
	IsActive     bool      `json:"is_active"`
}

// Monitor 基于滑动窗口统计执行频率，超过阈值时产生告警。
//
// 全局窗口与按委托人窗口独立计数；同一窗口桶内同类告警只会
// 产生一次，后续事件仅累加触发计数。
type Monitor struct {
	mu                 sync.Mutex
	window             time.Duration
	globalThreshold    int
	principalThreshold int
	globalEvents       []time.Time
	principalEvents    map[string][]time.Time
	alerts             map[string]*SecurityAlert
	dispatcher         alerting.Dispatcher
	dispatchTimeout    time.Duration
}

// Option 调整监控器的行为。
type Option func(*Monitor)

// WithWindow 设置滑动窗口长度，默认 1 小时。
func WithWindow(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.window = d
		}
	}
}

// WithThresholds 设置全局与按委托人的触发阈值。
func WithThresholds(global, perPrincipal int) Option {
	return func(m *Monitor) {
		if global > 0 {
			m.globalThreshold = global
		}
		if perPrincipal > 0 {
			m.principalThreshold = perPrincipal
		}
	}
}

// WithDispatcher 设置告警外发通道。
func WithDispatcher(d alerting.Dispatcher) Option {
	return func(m *Monitor) { m.dispatcher = d }
}

// NewMonitor 创建异常行为监控器。
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		window:             time.Hour,
		globalThreshold:    10,
		principalThreshold: 5,
		principalEvents:    make(map[string][]time.Time),
		alerts:             make(map[string]*SecurityAlert),
		dispatchTimeout:    10 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record 记录一次执行事件并检查是否越过阈值。
func (m *Monitor) Record(ctx context.Context, principal string, ts time.Time) {
	key := strings.ToLower(strings.TrimSpace(principal))

	m.mu.Lock()
	cutoff := ts.Add(-m.window)

	m.globalEvents = pruneBefore(append(m.globalEvents, ts), cutoff)
	m.principalEvents[key] = pruneBefore(append(m.principalEvents[key], ts), cutoff)

	var fired []SecurityAlert
	if len(m.globalEvents) >= m.globalThreshold {
		if alert := m.raiseLocked(KindGlobalVelocity, "", SeverityHigh, len(m.globalEvents), ts); alert != nil {
			fired = append(fired, *alert)
		}
	}
	if len(m.principalEvents[key]) >= m.principalThreshold {
		if alert := m.raiseLocked(KindPrincipalVelocity, key, SeverityCritical, len(m.principalEvents[key]), ts); alert != nil {
			fired = append(fired, *alert)
		}
	}
	m.mu.Unlock()

	for _, alert := range fired {
		m.dispatch(alert)
	}
}

// raiseLocked 在持锁状态下生成或更新告警。告警 ID 由类别、委托人
// 与窗口桶决定，同一桶内不会重复派发。
func (m *Monitor) raiseLocked(kind, principal, severity string, count int, ts time.Time) *SecurityAlert {
	bucket := ts.Unix() / int64(m.window/time.Second)
	id := fmt.Sprintf("%s-%d", kind, bucket)
	if principal != "" {
		id = fmt.Sprintf("%s-%s-%d", kind, principal, bucket)
	}
	if existing, ok := m.alerts[id]; ok {
		existing.TriggerCount = count
		return nil
	}
	message := fmt.Sprintf("Unusual activity: %d executions within %s", count, m.window)
	if principal != "" {
		message = fmt.Sprintf("Unusual activity for %s: %d executions within %s", principal, count, m.window)
	}
	alert := &SecurityAlert{
		ID:           id,
		Kind:         kind,
		Severity:     severity,
		Message:      message,
		Principal:    principal,
		TriggerCount: count,
		CreatedAt:    ts,
		IsActive:     true,
	}
	m.alerts[id] = alert
	return alert
}

// dispatch 异步外发告警，失败只记录日志，不影响评估路径。
func (m *Monitor) dispatch(alert SecurityAlert) {
	logger.L().Warn("检测到异常行为",
		slog.String("alert_id", alert.ID),
		slog.String("kind", alert.Kind),
		slog.String("severity", alert.Severity),
		slog.Int("trigger_count", alert.TriggerCount),
	)
	if m.dispatcher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.dispatchTimeout)
		defer cancel()
		event := alerting.Event{
			AlertID:      alert.ID,
			Kind:         alert.Kind,
			Severity:     alert.Severity,
			Message:      alert.Message,
			Principal:    alert.Principal,
			TriggerCount: alert.TriggerCount,
			OccurredAt:   alert.CreatedAt,
		}
		if err := m.dispatcher.Notify(ctx, event); err != nil {
			logger.L().Error("告警外发失败",
				slog.String("alert_id", alert.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// ActiveAlerts 返回当前处于激活状态的告警，按创建时间倒序排列。
func (m *Monitor) ActiveAlerts() []SecurityAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SecurityAlert
	for _, alert := range m.alerts {
		if alert.IsActive {
			out = append(out, *alert)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Resolve 将指定告警标记为已处理。
func (m *Monitor) Resolve(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert, ok := m.alerts[id]
	if !ok || !alert.IsActive {
		return false
	}
	alert.IsActive = false
	return true
}

func pruneBefore(events []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(events) && events[idx].Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return events
	}
	return append(events[:0], events[idx:]...)
}
