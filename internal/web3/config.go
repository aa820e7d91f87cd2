package web3

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ContractDefinitions models the structure of configs/contract.yaml.
type ContractDefinitions struct {
	Contracts map[string]ContractDefinition `yaml:"contracts"`
}

// ContractDefinition describes where a deployed contract lives.
type ContractDefinition struct {
	Network     string `yaml:"network"`
	RPCURL      string `yaml:"rpc_url"`
	Address     string `yaml:"address"`
	ChainID     int64  `yaml:"chain_id"`
	ABIPath     string `yaml:"abi_path"`
	GasLimit    uint64 `yaml:"gas_limit"`
	Description string `yaml:"description"`
}

// LoadContractDefinitions parses the YAML file containing contract metadata.
func LoadContractDefinitions(path string) (ContractDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ContractDefinitions{Contracts: map[string]ContractDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ContractDefinitions{}, fmt.Errorf("读取合约配置失败: %w", err)
	}

	var defs ContractDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ContractDefinitions{}, fmt.Errorf("解析合约配置失败: %w", err)
	}
	if defs.Contracts == nil {
		defs.Contracts = map[string]ContractDefinition{}
	}
	return defs, nil
}

// Merge returns def with every non-empty field of override applied on top.
func (def ContractDefinition) Merge(override ContractDefinition) ContractDefinition {
	if v := strings.TrimSpace(override.Network); v != "" {
		def.Network = v
	}
	if v := strings.TrimSpace(override.RPCURL); v != "" {
		def.RPCURL = v
	}
	if v := strings.TrimSpace(override.Address); v != "" {
		def.Address = v
	}
	if override.ChainID != 0 {
		def.ChainID = override.ChainID
	}
	if v := strings.TrimSpace(override.ABIPath); v != "" {
		def.ABIPath = v
	}
	if override.GasLimit != 0 {
		def.GasLimit = override.GasLimit
	}
	if v := strings.TrimSpace(override.Description); v != "" {
		def.Description = v
	}
	return def
}
