// Package askworld implements the AskWorld agent: allow-listed contract
// reads, the answer validation workflow and question summaries.
package askworld

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"AskWorld-Agents/internal/agent"
	"AskWorld-Agents/internal/correlate"
	xerrors "AskWorld-Agents/internal/errors"
	"AskWorld-Agents/internal/llm"
	"AskWorld-Agents/internal/observability/alerting"
	"AskWorld-Agents/internal/observability/metrics"
	"AskWorld-Agents/internal/protocol"
	"AskWorld-Agents/internal/storage/ledger"
	"AskWorld-Agents/internal/web3"
	"AskWorld-Agents/pkg/logger"
)

// EmptyCommandReply 在聊天消息为空时返回。
const EmptyCommandReply = "Please provide a function name to call. Type 'help' for available functions."

// Judge 是工作流依赖的大模型能力子集。
type Judge interface {
	JudgeAnswer(ctx context.Context, question, answer string) (*llm.Judgement, error)
	Summarize(ctx context.Context, question string, answers []string) (string, error)
}

// Recorder 保存已提交交易的回执。
type Recorder interface {
	Record(ctx context.Context, receipt ledger.Receipt) error
}

// Config 配置 AskWorld 服务。
type Config struct {
	Chain      web3.Client
	Judge      Judge
	Correlator *correlate.Correlator
	BlobAgent  correlate.Target
	Ledger     Recorder
	Timeout    time.Duration
	Metrics    *metrics.Metrics
	Alerts     alerting.Dispatcher
}

// Service 处理 AskWorld 智能体的指令。
type Service struct {
	chain      web3.Client
	judge      Judge
	correlator *correlate.Correlator
	blobAgent  correlate.Target
	ledger     Recorder
	timeout    time.Duration
	metrics    *metrics.Metrics
	alerts     alerting.Dispatcher
	logger     *slog.Logger
}

var _ agent.Handler = (*Service)(nil)

// NewService 创建服务。
func NewService(cfg Config) *Service {
	s := &Service{
		chain:      cfg.Chain,
		judge:      cfg.Judge,
		correlator: cfg.Correlator,
		blobAgent:  cfg.BlobAgent,
		ledger:     cfg.Ledger,
		timeout:    cfg.Timeout,
		metrics:    cfg.Metrics,
		alerts:     cfg.Alerts,
		logger:     logger.Named("askworld"),
	}
	if s.timeout <= 0 {
		s.timeout = 60 * time.Second
	}
	if s.blobAgent.Name == "" {
		s.blobAgent.Name = "the Walrus agent"
	}
	return s
}

// Handle 实现 agent.Handler，聊天文本即指令。
func (s *Service) Handle(ctx context.Context, req agent.Request) string {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return EmptyCommandReply
	}
	return s.Execute(ctx, text)
}

// Call 响应 FunctionCallRequest，结果以 ✅ 开头视为成功。
func (s *Service) Call(ctx context.Context, req protocol.FunctionCallRequest) protocol.FunctionCallResponse {
	result := s.Execute(ctx, req.FunctionName)
	if strings.HasPrefix(result, "✅") {
		return protocol.FunctionCallResponse{FunctionName: req.FunctionName, Result: result, Success: true}
	}
	return protocol.FunctionCallResponse{FunctionName: req.FunctionName, ErrorMessage: result}
}

// Execute 执行一条指令并返回回复文本，失败以 ❌ 开头。
func (s *Service) Execute(ctx context.Context, input string) string {
	cmd := ParseCommand(input)
	if cmd.Name == "" {
		return EmptyCommandReply
	}
	s.logger.Info("执行指令", slog.String("command", cmd.Name), slog.Int("args", len(cmd.Args)))

	switch strings.ToLower(cmd.Name) {
	case "connection", "connect", "network", "status":
		return s.CheckConnection(ctx)
	case "help", "functions", "list":
		return AvailableFunctions()
	case "validate":
		return s.Validate(ctx)
	case "summarize":
		if len(cmd.Args) != 1 {
			return "❌ Usage: summarize <questionId>"
		}
		id, ok := cmd.Args[0].(*big.Int)
		if !ok {
			return fmt.Sprintf("❌ Invalid question id: %v", cmd.Args[0])
		}
		return s.Summarize(ctx, id)
	}
	return s.readFunction(ctx, cmd)
}

// AvailableFunctions 返回可读函数列表。
func AvailableFunctions() string {
	lines := make([]string, len(web3.ReadFunctions))
	for i, fn := range web3.ReadFunctions {
		lines[i] = "• " + fn
	}
	return "📋 Available read functions:\n" + strings.Join(lines, "\n")
}

// CheckConnection 报告节点连接状态。
func (s *Service) CheckConnection(ctx context.Context) string {
	if s.chain == nil {
		return "❌ Connection error: chain client not configured"
	}
	snapshot, err := s.chain.FetchChainSnapshot(ctx)
	if err != nil {
		return "❌ Connection error: " + xerrors.DetailOf(err)
	}
	network := snapshot.Network
	if network == "" {
		network = "Worldcoin Mainnet"
	}
	return fmt.Sprintf("✅ Connected to %s!\n⛓️ Chain ID: %s\n📊 Latest block: %d\n🔗 Contract: %s",
		network, snapshot.ChainID, snapshot.BlockNumber, snapshot.Contract.Hex())
}

func (s *Service) readFunction(ctx context.Context, cmd Command) string {
	if !web3.IsReadable(cmd.Name) {
		return fmt.Sprintf("❌ Function '%s' not found or not readable.\n📋 Available functions: %s",
			cmd.Name, strings.Join(web3.ReadFunctions, ", "))
	}
	if s.chain == nil {
		return fmt.Sprintf("❌ Error calling %s: chain client not configured", cmd.Name)
	}
	result, err := s.chain.ReadFunction(ctx, cmd.Name, cmd.Args)
	if err != nil {
		return fmt.Sprintf("❌ Error calling %s: %s", cmd.Name, xerrors.DetailOf(err))
	}
	return result
}

// transcribe 委托 blob 智能体下载并转写答案音频。
func (s *Service) transcribe(ctx context.Context, audioHash string) (string, string) {
	if s.correlator == nil {
		return "", "transcription is not configured"
	}
	resp, status := correlate.Delegate[protocol.BlobTranscriptionRequest, protocol.BlobTranscriptionResponse](
		ctx, s.correlator, s.blobAgent,
		protocol.BlobTranscriptionRequest{BlobID: audioHash, RequestID: "transcribe_" + audioHash},
		s.timeout)
	if !status.OK() {
		return "", "request failed: " + status.String()
	}
	if !resp.Success {
		msg := resp.ErrorMessage
		if msg == "" {
			msg = "Unknown error"
		}
		return "", msg
	}
	return resp.Transcript, ""
}
