package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"AskWorld-Agents/internal/config"
	"AskWorld-Agents/internal/observability/metrics"
	"AskWorld-Agents/internal/web3"
	"AskWorld-Agents/internal/web3/ethereum"
)

// Registry manages a set of contract clients keyed by human readable names.
type Registry struct {
	defaultContract string
	clients         map[string]*ethereum.Client
}

// NewRegistry loads contract definitions, applies the overrides from the
// agent configuration to the selected contract and dials every client.
func NewRegistry(ctx context.Context, cfg config.ChainConfig, m *metrics.Metrics) (*Registry, error) {
	defs, err := web3.LoadContractDefinitions(cfg.Definitions)
	if err != nil {
		return nil, err
	}

	defaultContract := strings.TrimSpace(cfg.Contract)
	if defaultContract == "" {
		defaultContract = "askworld"
	}
	defs.Contracts[defaultContract] = defs.Contracts[defaultContract].Merge(web3.ContractDefinition{
		RPCURL:   cfg.RPCURL,
		Address:  cfg.ContractAddress,
		ABIPath:  cfg.ABIPath,
		GasLimit: cfg.GasLimit,
	})

	clients := make(map[string]*ethereum.Client)
	closeAll := func() {
		for _, c := range clients {
			c.Close()
		}
	}
	for name, def := range defs.Contracts {
		if strings.TrimSpace(def.RPCURL) == "" || strings.TrimSpace(def.Address) == "" {
			if name == defaultContract {
				closeAll()
				return nil, fmt.Errorf("合约 %s 缺少 rpc_url 或 address", name)
			}
			continue
		}
		abiJSON, err := loadABI(def.ABIPath)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("加载合约 %s 的 ABI 失败: %w", name, err)
		}
		ethCfg := ethereum.Config{
			Name:     name,
			Network:  def.Network,
			RPCURL:   def.RPCURL,
			Contract: def.Address,
			ChainID:  def.ChainID,
			ABIJSON:  abiJSON,
			GasLimit: def.GasLimit,
			Metrics:  m,
		}
		if name == defaultContract {
			ethCfg.PrivateKey = cfg.ResolvePrivateKey()
		}
		client, err := ethereum.NewClient(ctx, ethCfg)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("初始化合约 %s 失败: %w", name, err)
		}
		clients[name] = client
	}

	if _, ok := clients[defaultContract]; !ok {
		closeAll()
		return nil, fmt.Errorf("默认合约 %s 未在配置中找到", defaultContract)
	}
	return &Registry{defaultContract: defaultContract, clients: clients}, nil
}

// loadABI reads either a bare ABI array or a compiler artifact carrying an
// "abi" field. An empty path selects the embedded AskWorld ABI.
func loadABI(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	trimmed := strings.TrimSpace(string(content))
	if strings.HasPrefix(trimmed, "[") {
		return trimmed, nil
	}
	var artifact struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(content, &artifact); err != nil {
		return "", err
	}
	if len(artifact.ABI) == 0 {
		return "", errors.New("artifact has no abi field")
	}
	return string(artifact.ABI), nil
}

// DefaultClient returns the client configured as default contract.
func (r *Registry) DefaultClient() (*ethereum.Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的合约客户端注册表")
	}
	client, ok := r.clients[r.defaultContract]
	if !ok {
		return nil, fmt.Errorf("默认合约 %s 未在注册表中", r.defaultContract)
	}
	return client, nil
}

// Client returns the contract client identified by name.
func (r *Registry) Client(name string) (*ethereum.Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[name]
	return client, ok
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, name)
	}
}

// Contracts returns the list of registered contract names.
func (r *Registry) Contracts() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
