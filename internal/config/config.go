package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config 描述了三个智能体进程在启动阶段需要加载的核心配置。
type Config struct {
	Server     ServerConfig     `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
	LLM        LLMConfig        `json:"llm"`
	Speech     SpeechConfig     `json:"speech"`
	Walrus     WalrusConfig     `json:"walrus"`
	Mailbox    MailboxConfig    `json:"mailbox"`
	Delegation DelegationConfig `json:"delegation"`
	Chain      ChainConfig      `json:"chain"`
	Ledger     LedgerConfig     `json:"ledger"`
	Telegram   TelegramConfig   `json:"telegram"`
	Runtime    RuntimeConfig    `json:"runtime"`
}

// ServerConfig 控制各智能体 REST 服务的监听地址。
type ServerConfig struct {
	BlobAddr        string `json:"blob_addr" env:"ASKWORLD_BLOB_ADDR"`
	TranscriberAddr string `json:"transcriber_addr" env:"ASKWORLD_TRANSCRIBER_ADDR"`
	AskWorldAddr    string `json:"askworld_addr" env:"ASKWORLD_ASKWORLD_ADDR"`
	MetricsPath     string `json:"metrics_path" env:"ASKWORLD_METRICS_PATH"`
}

// LoggingConfig 对应 pkg/logger 的初始化参数。
type LoggingConfig struct {
	Level   string      `json:"level" env:"ASKWORLD_LOG_LEVEL"`
	Format  string      `json:"format" env:"ASKWORLD_LOG_FORMAT"`
	Outputs []string    `json:"outputs" env:"ASKWORLD_LOG_OUTPUTS" envSeparator:","`
	Audit   AuditConfig `json:"audit"`
}

// AuditConfig 控制审计日志。
type AuditConfig struct {
	Enabled    bool   `json:"enabled" env:"ASKWORLD_AUDIT_ENABLED"`
	Path       string `json:"path" env:"ASKWORLD_AUDIT_PATH"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// LLMConfig 用于配置意图识别、澄清、答案评审所用的大模型。
type LLMConfig struct {
	APIKey         string `json:"api_key" env:"ASKWORLD_LLM_API_KEY"`
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url" env:"ASKWORLD_LLM_BASE_URL"`
	Model          string `json:"model" env:"ASKWORLD_LLM_MODEL"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout 返回单次大模型调用的超时时间。
func (c LLMConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

// ResolveAPIKey 优先使用显式配置的密钥，其次读取 api_key_env 指向的环境变量。
func (c LLMConfig) ResolveAPIKey() string {
	return resolveSecret(c.APIKey, c.APIKeyEnv)
}

// SpeechConfig 描述兼容 OpenAI 的 Whisper 语音转写服务。
type SpeechConfig struct {
	APIBase        string `json:"api_base" env:"ASKWORLD_SPEECH_API_BASE"`
	APIKey         string `json:"api_key" env:"ASKWORLD_SPEECH_API_KEY"`
	APIKeyEnv      string `json:"api_key_env"`
	Model          string `json:"model" env:"ASKWORLD_SPEECH_MODEL"`
	Language       string `json:"language" env:"ASKWORLD_SPEECH_LANGUAGE"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout 返回转写请求的超时时间。
func (c SpeechConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

// ResolveAPIKey 返回转写服务使用的密钥。
func (c SpeechConfig) ResolveAPIKey() string {
	return resolveSecret(c.APIKey, c.APIKeyEnv)
}

// WalrusConfig 包含 Walrus publisher / aggregator 的访问地址。
type WalrusConfig struct {
	PublisherURL        string `json:"publisher_url" env:"WALRUS_PUBLISHER_URL"`
	AggregatorURL       string `json:"aggregator_url" env:"WALRUS_AGGREGATOR_URL"`
	ScannerURL          string `json:"scanner_url" env:"WALRUS_SCANNER_URL"`
	Epochs              int    `json:"epochs" env:"WALRUS_EPOCHS"`
	TimeoutSeconds      int    `json:"timeout_seconds"`
	FetchTimeoutSeconds int    `json:"fetch_timeout_seconds"`
	FetchMaxBytes       int64  `json:"fetch_max_bytes" env:"WALRUS_FETCH_MAX_BYTES"`
}

// MailboxConfig 描述智能体之间异步消息的传输方式。
type MailboxConfig struct {
	Driver             string         `json:"driver" env:"ASKWORLD_MAILBOX_DRIVER"`
	Worker             int            `json:"worker"`
	BlobAddress        string         `json:"blob_address" env:"ASKWORLD_MAILBOX_BLOB"`
	TranscriberAddress string         `json:"transcriber_address" env:"ASKWORLD_MAILBOX_TRANSCRIBER"`
	AskWorldAddress    string         `json:"askworld_address" env:"ASKWORLD_MAILBOX_ASKWORLD"`
	Redis              RedisConfig    `json:"redis"`
	RabbitMQ           RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 信箱的连接参数。
type RedisConfig struct {
	Address          string `json:"address" env:"ASKWORLD_REDIS_ADDR"`
	Password         string `json:"password" env:"ASKWORLD_REDIS_PASSWORD"`
	DB               int    `json:"db"`
	Prefix           string `json:"prefix"`
	BlockWaitSeconds int    `json:"block_wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 信箱的连接参数。
type RabbitMQConfig struct {
	URL      string `json:"url" env:"ASKWORLD_RABBITMQ_URL"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// DelegationConfig 描述跨智能体委托调用的目标与超时。
type DelegationConfig struct {
	TranscriberTarget string   `json:"transcriber_target" env:"VOICE_TO_TEXT_AGENT_ADDRESS"`
	BlobAgentTarget   string   `json:"blob_agent_target" env:"WALRUS_AGENT_ADDRESS"`
	TimeoutSeconds    int      `json:"timeout_seconds"`
	HTTPHosts         []string `json:"http_hosts" env:"ASKWORLD_DELEGATION_HTTP_HOSTS" envSeparator:","`
}

// Timeout 返回委托调用的默认等待时间。
func (c DelegationConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

// ChainConfig 描述 AskWorld 合约所在链与签名账户。
type ChainConfig struct {
	Definitions     string `json:"definitions" env:"ASKWORLD_CHAIN_DEFINITIONS"`
	Contract        string `json:"contract"`
	RPCURL          string `json:"rpc_url" env:"ASKWORLD_RPC_URL"`
	ContractAddress string `json:"contract_address" env:"ASKWORLD_CONTRACT_ADDRESS"`
	ABIPath         string `json:"abi_path"`
	PrivateKey      string `json:"private_key"`
	PrivateKeyEnv   string `json:"private_key_env"`
	GasLimit        uint64 `json:"gas_limit"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
}

// ResolvePrivateKey 返回签名私钥，未配置时返回空字符串（只读模式）。
func (c ChainConfig) ResolvePrivateKey() string {
	return resolveSecret(c.PrivateKey, c.PrivateKeyEnv)
}

// Timeout 返回链上调用的超时时间。
func (c ChainConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

// LedgerConfig 描述验证交易回执的存储方式。
type LedgerConfig struct {
	Driver                 string `json:"driver" env:"ASKWORLD_LEDGER_DRIVER"`
	DSN                    string `json:"dsn" env:"ASKWORLD_LEDGER_DSN"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

// TelegramConfig 控制可选的 Telegram 聊天入口。
type TelegramConfig struct {
	Enabled   bool     `json:"enabled" env:"ASKWORLD_TELEGRAM_ENABLED"`
	Agent     string   `json:"agent" env:"ASKWORLD_TELEGRAM_AGENT"`
	Token     string   `json:"token"`
	TokenEnv  string   `json:"token_env"`
	AllowFrom []string `json:"allow_from" env:"ASKWORLD_TELEGRAM_ALLOW_FROM" envSeparator:","`
	// AlertChatID 非零时交易失败告警会发送到该会话。
	AlertChatID int64 `json:"alert_chat_id" env:"ASKWORLD_TELEGRAM_ALERT_CHAT"`
}

// ResolveToken 返回机器人令牌。
func (c TelegramConfig) ResolveToken() string {
	return resolveSecret(c.Token, c.TokenEnv)
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir" env:"ASKWORLD_DATA_DIR"`
	TempDir string `json:"temp_dir" env:"ASKWORLD_TEMP_DIR"`
}

// Load 负责解析指定路径的 JSON 配置文件，并叠加环境变量覆盖。
// 文件不存在时使用默认配置。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	var cfg Config
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	setDefault(&c.Server.BlobAddr, ":8001")
	setDefault(&c.Server.TranscriberAddr, ":8002")
	setDefault(&c.Server.AskWorldAddr, ":8003")
	setDefault(&c.Server.MetricsPath, "/metrics")

	setDefault(&c.Logging.Level, "info")
	setDefault(&c.Logging.Format, "json")
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path != "" && !filepath.IsAbs(c.Logging.Audit.Path) {
		c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
	}

	setDefault(&c.LLM.APIKeyEnv, "OPENAI_API_KEY")
	setDefault(&c.LLM.BaseURL, "https://api.openai.com/v1")
	setDefault(&c.LLM.Model, "gpt-4o")
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 30
	}

	setDefault(&c.Speech.APIBase, "https://api.openai.com/v1")
	setDefault(&c.Speech.APIKeyEnv, "OPENAI_API_KEY")
	setDefault(&c.Speech.Model, "whisper-1")
	if c.Speech.TimeoutSeconds <= 0 {
		c.Speech.TimeoutSeconds = 120
	}

	setDefault(&c.Walrus.PublisherURL, "https://publisher.walrus-testnet.walrus.space")
	setDefault(&c.Walrus.AggregatorURL, "https://aggregator.walrus-testnet.walrus.space")
	setDefault(&c.Walrus.ScannerURL, "https://walruscan.com/testnet")
	if c.Walrus.Epochs <= 0 {
		c.Walrus.Epochs = 3
	}
	if c.Walrus.TimeoutSeconds <= 0 {
		c.Walrus.TimeoutSeconds = 60
	}
	if c.Walrus.FetchTimeoutSeconds <= 0 {
		c.Walrus.FetchTimeoutSeconds = 30
	}
	if c.Walrus.FetchMaxBytes <= 0 {
		c.Walrus.FetchMaxBytes = 100 << 20
	}

	setDefault(&c.Mailbox.Driver, "memory")
	if c.Mailbox.Worker <= 0 {
		c.Mailbox.Worker = 4
	}
	setDefault(&c.Mailbox.BlobAddress, "agent.blob")
	setDefault(&c.Mailbox.TranscriberAddress, "agent.transcriber")
	setDefault(&c.Mailbox.AskWorldAddress, "agent.askworld")
	setDefault(&c.Mailbox.Redis.Prefix, "askworld:mailbox:")
	if c.Mailbox.Redis.BlockWaitSeconds <= 0 {
		c.Mailbox.Redis.BlockWaitSeconds = 5
	}

	setDefault(&c.Delegation.TranscriberTarget, "http://localhost:8002/transcribe")
	setDefault(&c.Delegation.BlobAgentTarget, "http://localhost:8001/transcribe-blob")
	if c.Delegation.TimeoutSeconds <= 0 {
		c.Delegation.TimeoutSeconds = 60
	}

	if c.Chain.Definitions != "" && !filepath.IsAbs(c.Chain.Definitions) {
		c.Chain.Definitions = filepath.Join(baseDir, c.Chain.Definitions)
	}
	if c.Chain.ABIPath != "" && !filepath.IsAbs(c.Chain.ABIPath) {
		c.Chain.ABIPath = filepath.Join(baseDir, c.Chain.ABIPath)
	}
	setDefault(&c.Chain.Contract, "askworld")
	setDefault(&c.Chain.PrivateKeyEnv, "ASKWORLD_SIGNER_KEY")
	if c.Chain.TimeoutSeconds <= 0 {
		c.Chain.TimeoutSeconds = 30
	}

	setDefault(&c.Ledger.Driver, "memory")
	setDefault(&c.Telegram.TokenEnv, "TELEGRAM_BOT_TOKEN")
	setDefault(&c.Telegram.Agent, "blob")

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
	if c.Ledger.Driver == "sqlite" && c.Ledger.DSN == "" {
		c.Ledger.DSN = filepath.Join(c.Runtime.DataDir, "ledger.db")
	}
}

func setDefault(field *string, value string) {
	if strings.TrimSpace(*field) == "" {
		*field = value
	}
}

func resolveSecret(value, envName string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	if envName == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(envName))
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
