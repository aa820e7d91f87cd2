package api

import (
	"context"
	"log/slog"

	"AskWorld-Agents/internal/agent"
	"AskWorld-Agents/internal/askworld"
	"AskWorld-Agents/internal/dispatch"
	"AskWorld-Agents/internal/protocol"
	"AskWorld-Agents/internal/speech"
	"AskWorld-Agents/pkg/logger"
)

// Chat 把聊天消息交给 handler，fetcher 用于下载 URL 附件。
func Chat(h agent.Handler, fetcher agent.URLFetcher) func(context.Context, protocol.ChatMessage) protocol.ChatReply {
	log := logger.Named("api.chat")
	return func(ctx context.Context, msg protocol.ChatMessage) protocol.ChatReply {
		log.Info("收到聊天消息", slog.String("msg_id", msg.MsgID), slog.Int("attachments", len(msg.Attachments)))
		return agent.Reply(ctx, h, fetcher, msg, log)
	}
}

// MountBlob 注册 blob 智能体的接口。
func MountBlob(s *Server, d *dispatch.Dispatcher, chat agent.Handler, fetcher agent.URLFetcher) {
	s.Post("/upload", Endpoint(d.UploadRequest))
	s.Post("/upload-url", Endpoint(d.UploadURLRequest))
	s.Post("/upload-text", Endpoint(d.UploadTextRequest))
	s.Post("/download", Endpoint(d.HandleDownload))
	s.Post("/transcribe-blob", Endpoint(d.TranscribeBlob))
	s.Post("/chat", Endpoint(Chat(chat, fetcher)))
}

// MountTranscriber 注册转写智能体的接口。
func MountTranscriber(s *Server, svc *speech.Service, fetcher agent.URLFetcher) {
	s.Post("/transcribe", Endpoint(svc.Transcribe))
	s.Post("/chat", Endpoint(Chat(svc, fetcher)))
}

// MountAskWorld 注册 AskWorld 智能体的接口。
func MountAskWorld(s *Server, svc *askworld.Service, fetcher agent.URLFetcher) {
	s.Post("/call", Endpoint(svc.Call))
	s.Post("/chat", Endpoint(Chat(svc, fetcher)))
}
