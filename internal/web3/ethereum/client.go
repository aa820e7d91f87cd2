package ethereum

import (
	"context"
	"crypto/ecdsa"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "AskWorld-Agents/internal/errors"
	"AskWorld-Agents/internal/observability/metrics"
	"AskWorld-Agents/internal/web3"
	"AskWorld-Agents/pkg/logger"
)

//go:embed askworld.abi.json
var askWorldABI string

const defaultGasLimit uint64 = 300_000

// Config describes how to construct a contract client.
type Config struct {
	Name       string
	Network    string
	RPCURL     string
	Contract   string
	ChainID    int64
	ABIJSON    string
	PrivateKey string
	GasLimit   uint64
	Metrics    *metrics.Metrics
}

// Backend is the subset of ethclient.Client used by the contract client.
type Backend interface {
	gethcore.ContractCaller
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
}

// Client implements web3.Client for the AskWorld contract on an EVM chain.
type Client struct {
	name     string
	network  string
	backend  Backend
	closer   func()
	abi      abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	gasLimit uint64
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	chainID *big.Int
}

var _ web3.Client = (*Client)(nil)

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeTransportFailure, err, "连接以太坊节点失败")
	}
	eth := ethclient.NewClient(rpcClient)

	client, err := NewWithBackend(eth, cfg)
	if err != nil {
		eth.Close()
		return nil, err
	}
	client.closer = eth.Close
	return client, nil
}

// NewWithBackend builds a client on top of an existing backend, such as a
// test double or a shared ethclient.
func NewWithBackend(backend Backend, cfg Config) (*Client, error) {
	if backend == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "缺少链访问后端")
	}
	if !common.IsHexAddress(cfg.Contract) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("合约地址无效: %q", cfg.Contract))
	}

	abiJSON := cfg.ABIJSON
	if strings.TrimSpace(abiJSON) == "" {
		abiJSON = askWorldABI
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析 ABI 失败")
	}

	c := &Client{
		name:     cfg.Name,
		network:  cfg.Network,
		backend:  backend,
		abi:      parsed,
		contract: common.HexToAddress(cfg.Contract),
		gasLimit: cfg.GasLimit,
		metrics:  cfg.Metrics,
		logger:   logger.Named("web3"),
	}
	if c.gasLimit == 0 {
		c.gasLimit = defaultGasLimit
	}
	if cfg.ChainID > 0 {
		c.chainID = big.NewInt(cfg.ChainID)
	}

	if key := strings.TrimSpace(cfg.PrivateKey); key != "" {
		priv, err := crypto.HexToECDSA(strings.TrimPrefix(key, "0x"))
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析签名私钥失败")
		}
		c.key = priv
		c.from = crypto.PubkeyToAddress(priv.PublicKey)
	}
	return c, nil
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closer != nil {
		c.closer()
		c.closer = nil
	}
}

// CanSign reports whether a signer key is configured.
func (c *Client) CanSign() bool {
	return c != nil && c.key != nil
}

// Contract returns the contract address.
func (c *Client) Contract() common.Address {
	return c.contract
}

// From returns the signer address, or the zero address in read-only mode.
func (c *Client) From() common.Address {
	return c.from
}

// FetchChainSnapshot gathers the chain id and latest block number.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	if c == nil {
		return web3.ChainSnapshot{}, errors.New("未初始化的以太坊客户端")
	}
	chainID, err := c.resolveChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, err
	}
	blockNumber, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, xerrors.Wrap(web3.CodeChainFailure, err, "获取最新区块高度失败")
	}
	return web3.ChainSnapshot{
		ChainID:     chainID,
		BlockNumber: blockNumber,
		Contract:    c.contract,
		Network:     c.network,
	}, nil
}

func (c *Client) resolveChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}

	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, xerrors.Wrap(web3.CodeChainFailure, err, "获取链 ID 失败")
	}
	c.mu.Lock()
	c.chainID = new(big.Int).Set(id)
	c.mu.Unlock()
	return id, nil
}
