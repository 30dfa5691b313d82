package rules

import (
	"bytes"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20TransferABI = `[{
	"name": "transfer",
	"type": "function",
	"inputs": [
		{"name": "to", "type": "address"},
		{"name": "amount", "type": "uint256"}
	],
	"outputs": [{"name": "", "type": "bool"}]
}]`

var (
	transferOnce   sync.Once
	transferMethod abi.Method
	transferErr    error
)

func loadTransferMethod() (abi.Method, error) {
	transferOnce.Do(func() {
		parsed, err := abi.JSON(strings.NewReader(erc20TransferABI))
		if err != nil {
			transferErr = err
			return
		}
		transferMethod = parsed.Methods["transfer"]
	})
	return transferMethod, transferErr
}

// DecodeTransfer 尝试把 calldata 解码为 ERC-20 transfer(to, amount)。
// 无法解码时返回 ok=false，由调用方按保守默认处理。
func DecodeTransfer(payload []byte) (recipient common.Address, amount *big.Int, ok bool) {
	method, err := loadTransferMethod()
	if err != nil || len(payload) < 4 {
		return common.Address{}, nil, false
	}
	if !bytes.Equal(payload[:4], method.ID) {
		return common.Address{}, nil, false
	}
	args, err := method.Inputs.Unpack(payload[4:])
	if err != nil || len(args) != 2 {
		return common.Address{}, nil, false
	}
	to, ok1 := args[0].(common.Address)
	value, ok2 := args[1].(*big.Int)
	if !ok1 || !ok2 {
		return common.Address{}, nil, false
	}
	return to, value, true
}

// decodedRecipient 返回动作的目标收款地址，优先使用预解码字段。
func decodedRecipient(action ProposedAction) string {
	if action.Recipient != "" {
		return action.Recipient
	}
	if to, _, ok := DecodeTransfer(action.Payload); ok {
		return to.Hex()
	}
	return ""
}

// decodedTokenAmount 返回动作携带的代币数量（原始最小单位）。
func decodedTokenAmount(action ProposedAction) *big.Int {
	if action.TokenAmount != nil {
		return action.TokenAmount
	}
	if _, amount, ok := DecodeTransfer(action.Payload); ok {
		return amount
	}
	return nil
}
