package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"AskWorld-Agents/internal/dispatch"
	"AskWorld-Agents/internal/intent"
	"AskWorld-Agents/internal/observability/metrics"
	"AskWorld-Agents/pkg/logger"
)

// NoContentPrompt 在上传类意图没有任何可用内容时返回。
const NoContentPrompt = "No content provided. Try attaching a file or sending a message!"

// Dispatcher 是流水线依赖的操作分发能力。
type Dispatcher interface {
	Dispatch(ctx context.Context, content []dispatch.ContentItem, result intent.Result) dispatch.OperationResult
}

// Pipeline 协调意图识别、澄清与操作分发，是 blob 智能体的聊天入口。
type Pipeline struct {
	classifier *intent.Classifier
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Option 定义可选的 Pipeline 配置。
type Option func(*Pipeline)

// WithMetrics 设置指标收集器。
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithLogger 设置日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New 创建一个 Pipeline。
func New(classifier *intent.Classifier, dispatcher Dispatcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		classifier: classifier,
		dispatcher: dispatcher,
		logger:     logger.Named("agent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.classifier == nil {
		p.classifier = intent.NewClassifier(nil)
	}
	return p
}

var _ Handler = (*Pipeline)(nil)

// Handle 处理一次聊天请求并返回回复，任何内部失败都会转换为回复文本。
func (p *Pipeline) Handle(ctx context.Context, req Request) string {
	start := time.Now()
	text := strings.TrimSpace(req.Text)
	hasAttachment := req.HasAttachment()

	if text == "" && !hasAttachment {
		return intent.NoMessagePrompt
	}

	// 识别意图。
	result := p.classifier.Classify(ctx, text, hasAttachment)
	clarify := result.NeedsClarification() && text != ""
	p.metrics.RecordIntent(string(result.Intent), clarify)
	p.logger.Info("意图识别完成",
		slog.String("intent", string(result.Intent)),
		slog.Float64("confidence", result.Confidence),
		slog.Bool("attachment", hasAttachment),
	)

	if clarify {
		return p.classifier.Clarify(ctx, text)
	}

	switch result.Intent {
	case intent.Help:
		return intent.HelpText()
	case intent.ListBlobs:
		return intent.ListComingSoon
	}

	// 组装内容：附件在前，文本在后。
	content := make([]dispatch.ContentItem, 0, len(req.Attachments)+1)
	for _, att := range req.Attachments {
		if len(att.Data) == 0 {
			continue
		}
		content = append(content, dispatch.Resource(att.MimeType, att.Data))
	}
	if text != "" && (result.Intent == intent.UploadFile || result.Intent == intent.UploadText) {
		content = append(content, dispatch.Text(text))
	}

	if len(content) == 0 && result.Intent != intent.UploadText && result.Intent != intent.DownloadBlob {
		return NoContentPrompt
	}
	if p.dispatcher == nil {
		return "❌ Blob operations are not configured."
	}

	outcome := p.dispatcher.Dispatch(ctx, content, result)
	attrs := []any{
		slog.String("intent", string(result.Intent)),
		slog.Bool("success", outcome.Success),
		slog.Duration("elapsed", time.Since(start)),
	}
	if outcome.ErrorDetail != "" {
		attrs = append(attrs, slog.String("error", outcome.ErrorDetail))
	}
	p.logger.Info("操作分发完成", attrs...)
	return outcome.Message
}
