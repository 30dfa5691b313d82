package signal

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChainDefinitions models the structure of configs/chains.yaml.
type ChainDefinitions struct {
	Default string                     `yaml:"default"`
	Chains  map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition describes a single chain endpoint used by the gas signal.
type ChainDefinition struct {
	RPCURL      string `yaml:"rpc_url"`
	Description string `yaml:"description"`
}

// LoadChainDefinitions parses the YAML file containing chain metadata. An
// empty path yields an empty definition set rather than an error.
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, fmt.Errorf("读取链配置失败: %w", err)
	}

	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, fmt.Errorf("解析链配置失败: %w", err)
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	return defs, nil
}

// Resolve returns the RPC endpoint for the named chain, falling back to the
// configured default chain when name is empty.
func (d ChainDefinitions) Resolve(name string) (ChainDefinition, error) {
	if name == "" {
		name = d.Default
	}
	if name == "" {
		return ChainDefinition{}, fmt.Errorf("未指定链名称且没有默认链")
	}
	def, ok := d.Chains[name]
	if !ok {
		return ChainDefinition{}, fmt.Errorf("未定义的链: %s", name)
	}
	return def, nil
}
