package signal

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// EthGasProvider 通过以太坊节点读取当前 gas 价格。
type EthGasProvider struct {
	name string
	rpc  *gethrpc.Client
	eth  *ethclient.Client
}

// NewEthGasProvider 连接配置的 RPC 节点并返回可用的 gas 信号源。
func NewEthGasProvider(ctx context.Context, name, rpcURL string) (*EthGasProvider, error) {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}
	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}
	return &EthGasProvider{
		name: name,
		rpc:  rpcClient,
		eth:  ethclient.NewClient(rpcClient),
	}, nil
}

// Fetch 读取建议 gas 价格与最新区块 base fee，单位换算为 gwei。
func (p *EthGasProvider) Fetch(ctx context.Context) (*GasSnapshot, error) {
	if p == nil || p.eth == nil {
		return nil, errors.New("未初始化的 gas 信号源")
	}

	gasPrice, err := p.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询 gas 价格失败: %w", err)
	}

	snapshot := &GasSnapshot{
		Timestamp:    time.Now().UTC(),
		StandardGwei: weiToGwei(gasPrice),
	}

	// base fee 读取失败不视为信号不可用。
	if header, headerErr := p.eth.HeaderByNumber(ctx, nil); headerErr == nil && header.BaseFee != nil {
		snapshot.BaseFeeGwei = weiToGwei(header.BaseFee)
	}
	return snapshot, nil
}

// Close 释放底层 RPC 连接。
func (p *EthGasProvider) Close() {
	if p == nil {
		return
	}
	if p.eth != nil {
		p.eth.Close()
		p.eth = nil
	}
	if p.rpc != nil {
		p.rpc.Close()
		p.rpc = nil
	}
}

func weiToGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e9)).Float64()
	return gwei
}

var _ GasProvider = (*EthGasProvider)(nil)
