package api

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"DelegateGuard/internal/policy/rules"
)

// EvaluateRequest 是策略评估请求体。
type EvaluateRequest struct {
	Principal string        `json:"principal"`
	AgentID   string        `json:"agent_id"`
	Action    ActionRequest `json:"action"`
}

// ActionRequest 描述待授权的链上动作。Value 与 TokenAmount 为十进制
// 字符串，Payload 为 0x 前缀的十六进制 calldata。
type ActionRequest struct {
	Target      string `json:"target"`
	Value       string `json:"value,omitempty"`
	Payload     string `json:"payload,omitempty"`
	TokenAmount string `json:"token_amount,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
}

func (a ActionRequest) toProposedAction() (rules.ProposedAction, error) {
	action := rules.ProposedAction{
		Target:    a.Target,
		Recipient: a.Recipient,
	}
	if a.Value != "" {
		value, ok := new(big.Int).SetString(a.Value, 10)
		if !ok {
			return action, fmt.Errorf("value %q 不是合法的十进制整数", a.Value)
		}
		action.Value = value
	}
	if a.TokenAmount != "" {
		amount, ok := new(big.Int).SetString(a.TokenAmount, 10)
		if !ok {
			return action, fmt.Errorf("token_amount %q 不是合法的十进制整数", a.TokenAmount)
		}
		action.TokenAmount = amount
	}
	if a.Payload != "" {
		payload, err := hexutil.Decode(ensureHexPrefix(a.Payload))
		if err != nil {
			return action, fmt.Errorf("payload 解析失败: %w", err)
		}
		action.Payload = payload
	}
	return action, nil
}

func ensureHexPrefix(value string) string {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return value
	}
	return "0x" + value
}

// RecordExecutionRequest 是执行确认回报的请求体。
type RecordExecutionRequest struct {
	EvaluationID string `json:"evaluation_id,omitempty"`
	Principal    string `json:"principal"`
	AgentID      string `json:"agent_id,omitempty"`
	Recipient    string `json:"recipient,omitempty"`
	Amount       string `json:"amount,omitempty"`
	TxHash       string `json:"tx_hash,omitempty"`
	BlockNumber  string `json:"block_number,omitempty"`
	Status       string `json:"status,omitempty"`
	ExecutedAt   int64  `json:"executed_at,omitempty"`
}
