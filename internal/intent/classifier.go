package intent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"AskWorld-Agents/internal/llm"
	"AskWorld-Agents/pkg/logger"
)

// Model 是分类器与澄清器依赖的大模型能力子集。
type Model interface {
	ClassifyIntent(ctx context.Context, text string) (*llm.IntentClassification, error)
	GenerateClarification(ctx context.Context, text string) (string, error)
}

// Classifier 先按固定前缀规则识别意图，规则都不命中时才调用大模型。
type Classifier struct {
	model   Model
	timeout time.Duration
	logger  *slog.Logger
}

// Option 定义分类器的可选配置。
type Option func(*Classifier)

// WithTimeout 限制单次大模型调用的耗时。
func WithTimeout(timeout time.Duration) Option {
	return func(c *Classifier) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithLogger 指定日志输出。
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClassifier 构造分类器，model 为 nil 时直接使用兜底规则。
func NewClassifier(model Model, opts ...Option) *Classifier {
	c := &Classifier{model: model, timeout: 30 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.logger == nil {
		c.logger = logger.Named("intent")
	}
	return c
}

type prefixRule struct {
	prefixes []string
	build    func(original, remainder string) Result
}

var prefixRules = []prefixRule{
	{
		prefixes: []string{"/download"},
		build: func(_, remainder string) Result {
			return Result{Intent: DownloadBlob, Confidence: 1.0, Data: ExtractedData{BlobID: remainder}}
		},
	},
	{
		prefixes: []string{"/upload"},
		build: func(_, remainder string) Result {
			if remainder != "" {
				return Result{Intent: UploadText, Confidence: 1.0, Data: ExtractedData{Description: remainder}}
			}
			return Result{Intent: UploadFile, Confidence: 1.0}
		},
	},
	{
		prefixes: []string{"/help", "/?", "help"},
		build:    func(string, string) Result { return Result{Intent: Help, Confidence: 1.0} },
	},
	{
		prefixes: []string{"/list", "/blobs", "list"},
		build:    func(string, string) Result { return Result{Intent: ListBlobs, Confidence: 1.0} },
	},
	{
		prefixes: []string{"http://", "https://"},
		build: func(original, _ string) Result {
			return Result{Intent: UploadFile, Confidence: 0.95, Data: ExtractedData{URL: original}}
		},
	},
}

// fallbackVerbs 出现任一词时不再把短文本当作上传内容。
var fallbackVerbs = []string{"download", "get", "fetch", "retrieve"}

// Classify 返回消息的意图。附件存在时总是上传文件；外部调用失败不会向上抛出。
func (c *Classifier) Classify(ctx context.Context, text string, hasAttachment bool) Result {
	trimmed := strings.TrimSpace(text)
	if hasAttachment {
		return Result{Intent: UploadFile, Confidence: 1.0, Data: ExtractedData{Description: trimmed}}
	}

	if result, ok := matchPrefix(trimmed); ok {
		return result
	}

	if result, ok := c.classifyWithModel(ctx, trimmed); ok {
		return result
	}
	return fallback(trimmed)
}

func matchPrefix(trimmed string) (Result, bool) {
	for _, rule := range prefixRules {
		for _, prefix := range rule.prefixes {
			if len(trimmed) >= len(prefix) && strings.EqualFold(trimmed[:len(prefix)], prefix) {
				remainder := strings.TrimSpace(trimmed[len(prefix):])
				return rule.build(trimmed, remainder), true
			}
		}
	}
	return Result{}, false
}

func (c *Classifier) classifyWithModel(ctx context.Context, text string) (Result, bool) {
	if c.model == nil || text == "" {
		return Result{}, false
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.model.ClassifyIntent(callCtx, text)
	if err != nil {
		c.logger.Warn("大模型意图识别失败，使用兜底规则", slog.Any("error", err))
		return Result{}, false
	}
	parsed, ok := Parse(resp.Intent)
	if !ok || resp.Confidence < 0 || resp.Confidence > 1 {
		c.logger.Warn("大模型返回的意图无效", slog.String("intent", resp.Intent), slog.Float64("confidence", resp.Confidence))
		return Result{}, false
	}
	return Result{
		Intent:     parsed,
		Confidence: resp.Confidence,
		Data: ExtractedData{
			BlobID:      strings.TrimSpace(resp.ExtractedData.BlobID),
			URL:         strings.TrimSpace(resp.ExtractedData.URL),
			Description: strings.TrimSpace(resp.ExtractedData.Description),
		},
	}, true
}

func fallback(trimmed string) Result {
	lower := strings.ToLower(trimmed)
	if len(trimmed) < 100 {
		mentionsRetrieval := false
		for _, verb := range fallbackVerbs {
			if strings.Contains(lower, verb) {
				mentionsRetrieval = true
				break
			}
		}
		if !mentionsRetrieval {
			return Result{Intent: UploadText, Confidence: 0.7}
		}
	}
	return Result{Intent: Unknown, Confidence: 0.5}
}
