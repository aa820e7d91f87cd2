// Package dispatch executes the blob operation selected by the intent
// classifier and renders the chat reply.
package dispatch

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"AskWorld-Agents/internal/blob"
	"AskWorld-Agents/internal/correlate"
	xerrors "AskWorld-Agents/internal/errors"
	"AskWorld-Agents/internal/intent"
	"AskWorld-Agents/internal/observability/metrics"
	"AskWorld-Agents/internal/protocol"
	"AskWorld-Agents/pkg/logger"
)

// ItemKind 区分内容条目的类型。
type ItemKind int

const (
	ItemResource ItemKind = iota
	ItemText
)

// ContentItem 是一次请求中的一段内容：资源（MIME 类型与字节）或文本。
type ContentItem struct {
	Kind     ItemKind
	MimeType string
	Data     []byte
	Text     string
}

// Resource 构造资源条目。
func Resource(mimeType string, data []byte) ContentItem {
	return ContentItem{Kind: ItemResource, MimeType: mimeType, Data: data}
}

// Text 构造文本条目。
func Text(text string) ContentItem {
	return ContentItem{Kind: ItemText, Text: text}
}

// OperationResult 是一次分发的结果。
type OperationResult struct {
	Success     bool
	Message     string
	ErrorDetail string
}

// URLFetcher 下载 URL 指向的内容。
type URLFetcher interface {
	FetchURL(ctx context.Context, rawURL string) ([]byte, string, error)
}

// Uploaded 是一次成功上传的结果。
type Uploaded struct {
	BlobID string
	URL    string
}

// Dispatcher 执行 blob 操作，必要时把音频转写委托给转写智能体。
type Dispatcher struct {
	store       blob.Store
	fetcher     URLFetcher
	correlator  *correlate.Correlator
	transcriber correlate.Target
	timeout     time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option 定义分发器的可选配置。
type Option func(*Dispatcher)

// WithTranscription 启用下载音频后的自动转写。
func WithTranscription(c *correlate.Correlator, target correlate.Target, timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.correlator = c
		d.transcriber = target
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithMetrics 指定指标收集器。
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// New 创建分发器。
func New(store blob.Store, fetcher URLFetcher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:   store,
		fetcher: fetcher,
		timeout: 60 * time.Second,
		logger:  logger.Named("dispatch"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Dispatch 根据意图执行操作。下载只看 blob ID；上传依次处理资源条目和文本条目。
func (d *Dispatcher) Dispatch(ctx context.Context, content []ContentItem, result intent.Result) OperationResult {
	switch result.Intent {
	case intent.Help:
		return OperationResult{Success: true, Message: intent.HelpText()}
	case intent.ListBlobs:
		return OperationResult{Success: true, Message: intent.ListComingSoon}
	case intent.DownloadBlob:
		blobID := strings.TrimSpace(result.Data.BlobID)
		if blobID == "" {
			blobID = blobIDFromContent(content)
		}
		if blobID == "" {
			return OperationResult{Message: noBlobIDMessage, ErrorDetail: "missing blob id"}
		}
		return d.downloadBlock(ctx, blobID)
	}

	var (
		blocks    []string
		succeeded bool
		firstErr  string
	)
	add := func(block string, err error) {
		blocks = append(blocks, block)
		if err == nil {
			succeeded = true
		} else if firstErr == "" {
			firstErr = errorDetail(err)
		}
	}

	for _, item := range content {
		if item.Kind != ItemResource {
			continue
		}
		add(d.uploadResourceBlock(ctx, item.Data, item.MimeType))
	}

	for _, item := range content {
		if item.Kind != ItemText {
			continue
		}
		text := strings.TrimSpace(item.Text)
		switch {
		case isURL(text):
			add(d.uploadURLBlock(ctx, text))
		case text == "":
		case result.Intent == intent.UploadText || result.Intent == intent.UploadFile:
			add(d.uploadTextBlock(ctx, text))
		}
	}

	if len(blocks) == 0 && result.Intent == intent.UploadText {
		if desc := strings.TrimSpace(result.Data.Description); desc != "" {
			add(d.uploadTextBlock(ctx, desc))
		}
	}

	if len(blocks) == 0 {
		return OperationResult{Message: noContentMessage, ErrorDetail: "no content"}
	}
	return OperationResult{Success: succeeded, Message: strings.Join(blocks, "\n\n"), ErrorDetail: firstErr}
}

func (d *Dispatcher) uploadResourceBlock(ctx context.Context, data []byte, mimeType string) (string, error) {
	up, err := d.UploadBytes(ctx, data, mimeType)
	if err != nil {
		return failedBlock("Upload Failed", "Error: "+xerrors.DetailOf(err)), err
	}
	return uploadedBlock("File Uploaded Successfully!", up.BlobID, up.URL), nil
}

func (d *Dispatcher) uploadURLBlock(ctx context.Context, rawURL string) (string, error) {
	up, err := d.UploadURL(ctx, rawURL)
	if err != nil {
		if _, ok := err.(*fetchError); ok {
			return failedBlock("Upload Failed", errorDetail(err)), err
		}
		return failedBlock("Upload Failed", "Error: "+xerrors.DetailOf(err)), err
	}
	return uploadedBlock("File Uploaded Successfully!", up.BlobID, up.URL), nil
}

func (d *Dispatcher) uploadTextBlock(ctx context.Context, text string) (string, error) {
	up, err := d.UploadText(ctx, text)
	if err != nil {
		return failedBlock("Text Upload Failed", "Error: "+xerrors.DetailOf(err)), err
	}
	return uploadedBlock("Text Uploaded Successfully!", up.BlobID, up.URL), nil
}

func (d *Dispatcher) downloadBlock(ctx context.Context, blobID string) OperationResult {
	data, mimeType, err := d.Download(ctx, blobID)
	if err != nil {
		detail := xerrors.DetailOf(err)
		return OperationResult{Message: failedBlock("Download Failed", "Error: "+detail), ErrorDetail: detail}
	}

	message := downloadedBlock(blobID, len(data), mimeType)
	if d.correlator != nil && IsAudio(mimeType, blobID, data) {
		message += audioDetectedBlock + d.transcriptionBlock(ctx, data, mimeType, blobID)
	}
	return OperationResult{Success: true, Message: message}
}

func (d *Dispatcher) transcriptionBlock(ctx context.Context, data []byte, mimeType, blobID string) string {
	resp, status := d.requestTranscription(ctx, data, mimeType, blobID)
	if !status.OK() {
		return "\n❌ Transcription request failed: " + status.String()
	}
	if !resp.Success {
		msg := resp.ErrorMessage
		if msg == "" {
			msg = "Unknown error"
		}
		return "\n❌ Transcription failed: " + msg
	}
	return "\n📝 Transcription: " + resp.Transcript
}

func (d *Dispatcher) requestTranscription(ctx context.Context, data []byte, mimeType, blobID string) (protocol.AudioTranscriptionResponse, correlate.Status) {
	if !strings.HasPrefix(mimeType, "audio/") {
		mimeType = SniffMime(blob.DefaultMimeType, blobID, data)
	}
	req := protocol.AudioTranscriptionRequest{
		AudioDataBase64: base64.StdEncoding.EncodeToString(data),
		MimeType:        mimeType,
		SourceBlobID:    blobID,
	}
	d.logger.Info("请求音频转写", slog.String("blob_id", blobID), slog.String("target", d.transcriber.Address))
	return correlate.Delegate[protocol.AudioTranscriptionRequest, protocol.AudioTranscriptionResponse](
		ctx, d.correlator, d.transcriber, req, d.timeout)
}

func blobIDFromContent(content []ContentItem) string {
	for _, item := range content {
		if item.Kind != ItemText {
			continue
		}
		if rest, ok := strings.CutPrefix(item.Text, "blob_id:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

func isURL(text string) bool {
	return strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://")
}
