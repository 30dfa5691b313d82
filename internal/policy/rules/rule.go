package rules

import (
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"DelegateGuard/internal/signal"
)

// ProposedAction 描述自动化代理提交的待授权链上动作。
// TokenAmount 与 Recipient 是从 Payload 预解码出的可选字段，
// 解码失败时保持零值，由各规则按自身的保守默认处理。
type ProposedAction struct {
	Target      string   `json:"target"`
	Value       *big.Int `json:"value,omitempty"`
	Payload     []byte   `json:"payload,omitempty"`
	TokenAmount *big.Int `json:"token_amount,omitempty"`
	Recipient   string   `json:"recipient,omitempty"`
}

// Context 是一次规则评估所能看到的全部输入。
// 规则实现只读不写，同一个 Context 会依次传给编译顺序中的每条规则。
type Context struct {
	Principal     string
	AgentID       string
	Action        ProposedAction
	Signals       signal.Set
	Now           time.Time
	LastExecution *time.Time
}

// Result 是单条规则的裁决。Metadata 仅用于审计与排障，不参与控制流。
type Result struct {
	RuleType string         `json:"rule_type"`
	RuleName string         `json:"rule_name"`
	Allowed  bool           `json:"allowed"`
	Reason   string         `json:"reason"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Config is the marker interface implemented by every rule's typed
// configuration struct. Evaluate implementations must tolerate a nil or
// mismatched Config and fall back to their documented defaults.
type Config interface {
	RuleType() string
}

// Rule 是所有策略规则必须实现的统一契约。
// Evaluate 不允许产生副作用，也不允许因配置异常而 panic 或返回错误。
type Rule interface {
	Type() string
	Name() string
	DefaultConfig() Config
	Evaluate(ctx Context, cfg Config) Result
}

// Instance 是编译产物中的一条 (规则类型, 配置) 对。
type Instance struct {
	Type   string `json:"type"`
	Config Config `json:"config"`
}

// Registry 是固定的规则目录，在启动阶段构建后只读。
// 未注册的规则类型属于编程错误，在编译阶段立即暴露。
type Registry struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewRegistry 构建包含全部内置规则的目录。
func NewRegistry() *Registry {
	r := &Registry{rules: make(map[string]Rule)}
	for _, rule := range []Rule{
		&MaxAmountRule{},
		&TimeWindowRule{},
		&GasLimitRule{},
		&SecurityPauseRule{},
		&RecipientRule{},
		&CooldownRule{},
	} {
		r.rules[rule.Type()] = rule
	}
	return r
}

// Register 追加一条自定义规则。重复注册同一类型返回错误。
func (r *Registry) Register(rule Rule) error {
	if rule == nil {
		return fmt.Errorf("规则不能为空")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[rule.Type()]; ok {
		return fmt.Errorf("规则类型 %s 已注册", rule.Type())
	}
	r.rules[rule.Type()] = rule
	return nil
}

// Get 返回指定类型的规则。
func (r *Registry) Get(ruleType string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[ruleType]
	return rule, ok
}

// Types 返回已注册的规则类型，按字典序排列。
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.rules))
	for t := range r.rules {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
