package agent

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"

	"AskWorld-Agents/internal/protocol"
)

// Attachment 是请求携带的文件，Data 与 URL 二者至少有一个。
type Attachment struct {
	MimeType string
	Data     []byte
	URL      string
}

// Request 是与传输方式无关的入站消息，一次处理后即丢弃。
type Request struct {
	Text        string
	Attachments []Attachment
	Metadata    map[string]string
}

// HasAttachment 判断请求是否携带可用的附件。
func (r Request) HasAttachment() bool {
	for _, att := range r.Attachments {
		if len(att.Data) > 0 {
			return true
		}
	}
	return false
}

// Handler 处理一次聊天请求并返回回复文本。
type Handler interface {
	Handle(ctx context.Context, req Request) string
}

// HandlerFunc 允许使用普通函数实现 Handler。
type HandlerFunc func(ctx context.Context, req Request) string

// Handle 调用函数本身。
func (f HandlerFunc) Handle(ctx context.Context, req Request) string {
	return f(ctx, req)
}

// FromChat 将聊天消息转换为 Request：文本片段以单个空格拼接，附件解码失败时跳过。
func FromChat(msg protocol.ChatMessage, logger *slog.Logger) Request {
	parts := make([]string, 0, len(msg.Text))
	for _, part := range msg.Text {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}

	req := Request{Text: strings.TrimSpace(strings.Join(parts, " "))}
	for _, att := range msg.Attachments {
		converted := Attachment{MimeType: strings.TrimSpace(att.MimeType), URL: strings.TrimSpace(att.URL)}
		if att.DataBase64 != "" {
			data, err := base64.StdEncoding.DecodeString(att.DataBase64)
			if err != nil {
				if logger != nil {
					logger.Warn("附件解码失败", slog.String("msg_id", msg.MsgID), slog.Any("error", err))
				}
				continue
			}
			converted.Data = data
		}
		if len(converted.Data) == 0 && converted.URL == "" {
			continue
		}
		req.Attachments = append(req.Attachments, converted)
	}
	if len(msg.Metadata) > 0 {
		req.Metadata = make(map[string]string, len(msg.Metadata))
		for k, v := range msg.Metadata {
			req.Metadata[k] = v
		}
	}
	return req
}

// URLFetcher 下载以 URL 形式给出的附件。
type URLFetcher interface {
	FetchURL(ctx context.Context, rawURL string) ([]byte, string, error)
}

// Resolve 下载 URL 附件并填充内容，下载失败的附件会被丢弃。
func Resolve(ctx context.Context, req Request, fetcher URLFetcher, logger *slog.Logger) Request {
	if fetcher == nil {
		return req
	}
	resolved := req
	resolved.Attachments = make([]Attachment, 0, len(req.Attachments))
	for _, att := range req.Attachments {
		if len(att.Data) > 0 || att.URL == "" {
			resolved.Attachments = append(resolved.Attachments, att)
			continue
		}
		data, mimeType, err := fetcher.FetchURL(ctx, att.URL)
		if err != nil {
			if logger != nil {
				logger.Warn("下载附件失败", slog.String("url", att.URL), slog.Any("error", err))
			}
			continue
		}
		if att.MimeType == "" {
			att.MimeType = mimeType
		}
		att.Data = data
		resolved.Attachments = append(resolved.Attachments, att)
	}
	return resolved
}

// Reply 处理一条聊天消息：转换、下载 URL 附件、交给 handler，并以相同 msg_id 回复。
func Reply(ctx context.Context, h Handler, fetcher URLFetcher, msg protocol.ChatMessage, logger *slog.Logger) protocol.ChatReply {
	req := Resolve(ctx, FromChat(msg, logger), fetcher, logger)
	return protocol.ChatReply{MsgID: msg.MsgID, Text: h.Handle(ctx, req)}
}
