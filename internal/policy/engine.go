package policy

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	xerrors "DelegateGuard/internal/errors"
	"DelegateGuard/internal/observability/metrics"
	"DelegateGuard/internal/policy/rules"
	"DelegateGuard/internal/signal"
	"DelegateGuard/internal/state"
	"DelegateGuard/pkg/logger"
)

// EvaluationResult 是一次完整评估的裁决，包含每条规则的结论。
type EvaluationResult struct {
	ID             string         `json:"id"`
	Principal      string         `json:"principal"`
	AgentID        string         `json:"agent_id"`
	Allowed        bool           `json:"allowed"`
	Decisions      []rules.Result `json:"decisions"`
	BlockingPolicy string         `json:"blocking_policy,omitempty"`
	BlockingReason string         `json:"blocking_reason,omitempty"`
	EvaluatedAt    time.Time      `json:"evaluated_at"`
}

// Engine 按编译后的策略对提案动作做出允许或拒绝的裁决。
//
// 评估流程：取策略 → 读执行历史 → 拉取外部信号 → 依次评估
// 每条规则。所有规则都会被评估（不短路），整体结论为逻辑与；
// 第一条拒绝的规则决定 BlockingPolicy 与 BlockingReason。
type Engine struct {
	store        Store
	registry     *rules.Registry
	fetcher      *signal.Fetcher
	tracker      state.Tracker
	defaultAllow bool
	now          func() time.Time
}

// EngineOption 调整引擎的行为。
type EngineOption func(*Engine)

// WithDefaultAllow 在委托人未配置策略时放行。默认拒绝：
// 授权决策不应建立在缺失的策略之上。
func WithDefaultAllow(allow bool) EngineOption {
	return func(e *Engine) { e.defaultAllow = allow }
}

// WithEngineClock 注入时钟，测试用。
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine 创建评估引擎。
func NewEngine(store Store, registry *rules.Registry, fetcher *signal.Fetcher, tracker state.Tracker, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		registry: registry,
		fetcher:  fetcher,
		tracker:  tracker,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate 评估一次提案动作。只有底层存储异常才会返回非空
// error；策略层面的拒绝通过结果中的 Allowed=false 表达。
func (e *Engine) Evaluate(ctx context.Context, principal, agentID string, action rules.ProposedAction) (*EvaluationResult, error) {
	start := e.now()
	result := &EvaluationResult{
		ID:          uuid.NewString(),
		Principal:   principal,
		AgentID:     agentID,
		EvaluatedAt: start.UTC(),
	}

	compiled, err := e.store.Compiled(ctx, principal)
	if err != nil {
		if stdErrors.Is(err, ErrPolicyNotFound) {
			e.concludeWithout(result, start)
			return result, nil
		}
		return nil, err
	}

	last, err := e.tracker.LastExecution(ctx, principal)
	if err != nil {
		// 状态不可知时必须拒绝：授权不能建立在不确定的历史之上。
		e.failClosed(result, compiled.Name, err, start)
		return result, nil
	}

	signals := e.fetcher.FetchAll(ctx)
	ruleCtx := rules.Context{
		Principal:     principal,
		AgentID:       agentID,
		Action:        action,
		Signals:       signals,
		Now:           start.UTC(),
		LastExecution: last,
	}

	allowed := true
	for _, inst := range compiled.Rules {
		rule, ok := e.registry.Get(inst.Type)
		if !ok {
			// 编译期已校验过注册表，此分支只在注册表被错误修改时出现。
			decision := rules.Result{
				RuleType: inst.Type,
				RuleName: inst.Type,
				Allowed:  false,
				Reason:   "Rule type not registered: " + inst.Type,
			}
			result.Decisions = append(result.Decisions, decision)
			if allowed {
				allowed = false
				result.BlockingPolicy = decision.RuleName
				result.BlockingReason = decision.Reason
			}
			continue
		}
		decision := rule.Evaluate(ruleCtx, inst.Config)
		result.Decisions = append(result.Decisions, decision)
		if !decision.Allowed && allowed {
			allowed = false
			result.BlockingPolicy = decision.RuleName
			result.BlockingReason = decision.Reason
		}
	}
	result.Allowed = allowed

	e.audit(result, compiled.Name, start)
	return result, nil
}

// concludeWithout 处理未配置策略的委托人。
func (e *Engine) concludeWithout(result *EvaluationResult, start time.Time) {
	if e.defaultAllow {
		result.Allowed = true
		result.Decisions = append(result.Decisions, rules.Result{
			RuleType: "no-policy",
			RuleName: "No Policy Configured",
			Allowed:  true,
			Reason:   "No policy configured, allowing by default",
		})
	} else {
		result.Allowed = false
		decision := rules.Result{
			RuleType: "no-policy",
			RuleName: "No Policy Configured",
			Allowed:  false,
			Reason:   "No policy configured for principal",
		}
		result.Decisions = append(result.Decisions, decision)
		result.BlockingPolicy = decision.RuleName
		result.BlockingReason = decision.Reason
	}
	e.audit(result, "", start)
}

// failClosed 在状态存储失败时生成拒绝结论。
func (e *Engine) failClosed(result *EvaluationResult, policyName string, cause error, start time.Time) {
	result.Allowed = false
	decision := rules.Result{
		RuleType: "temporal-state",
		RuleName: "Temporal State",
		Allowed:  false,
		Reason:   string(state.CodeStateUnavailable) + ": execution history unavailable",
		Metadata: map[string]any{"error": cause.Error()},
	}
	result.Decisions = append(result.Decisions, decision)
	result.BlockingPolicy = decision.RuleName
	result.BlockingReason = decision.Reason

	logger.L().Error("状态存储不可用，评估按拒绝处理",
		slog.String("principal", result.Principal),
		slog.String("code", string(xerrors.CodeOf(cause))),
		slog.String("error", cause.Error()),
	)
	e.audit(result, policyName, start)
}

// audit 输出决策审计日志并上报指标。
func (e *Engine) audit(result *EvaluationResult, policyName string, start time.Time) {
	duration := e.now().Sub(start)
	metrics.ObserveEvaluation(result.Allowed, result.BlockingPolicy, duration)
	logger.Decision().Info("policy evaluation",
		slog.String("evaluation_id", result.ID),
		slog.String("principal", result.Principal),
		slog.String("agent_id", result.AgentID),
		slog.String("policy", policyName),
		slog.Bool("allowed", result.Allowed),
		slog.String("blocking_policy", result.BlockingPolicy),
		slog.String("blocking_reason", result.BlockingReason),
		slog.Int("decision_count", len(result.Decisions)),
		slog.Duration("duration", duration),
	)
}
