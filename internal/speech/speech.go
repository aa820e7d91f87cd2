// Package speech turns audio into text for the transcriber agent.
package speech

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"AskWorld-Agents/internal/agent"
	xerrors "AskWorld-Agents/internal/errors"
	"AskWorld-Agents/internal/protocol"
	"AskWorld-Agents/pkg/logger"
)

// NoAudioReply 在聊天消息中没有可转写的音频时返回。
const NoAudioReply = "No valid audio found."

// Audio 是一段待转写的音频。
type Audio struct {
	Data     []byte
	Filename string
	Prompt   string
}

// Transcriber 是语音转文字服务的抽象。
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// Service 实现转写智能体的业务逻辑。
type Service struct {
	transcriber Transcriber
	fetcher     agent.URLFetcher
	logger      *slog.Logger
}

// NewService 创建转写服务，fetcher 为空时聊天中的音频链接会被忽略。
func NewService(transcriber Transcriber, fetcher agent.URLFetcher) *Service {
	return &Service{transcriber: transcriber, fetcher: fetcher, logger: logger.Named("speech")}
}

// Transcribe 处理结构化的转写请求，失败通过 success=false 返回。
func (s *Service) Transcribe(ctx context.Context, req protocol.AudioTranscriptionRequest) protocol.AudioTranscriptionResponse {
	resp := protocol.AudioTranscriptionResponse{SourceBlobID: req.SourceBlobID}

	data, err := base64.StdEncoding.DecodeString(req.AudioDataBase64)
	if err != nil {
		resp.ErrorMessage = "invalid audio_data_base64: " + err.Error()
		return resp
	}
	mimeType := strings.TrimSpace(req.MimeType)
	if mimeType == "" {
		mimeType = "audio/mpeg"
	}
	if !IsAudioMime(mimeType) {
		resp.ErrorMessage = fmt.Sprintf("unsupported mime type %s", mimeType)
		return resp
	}

	transcript, err := s.transcribe(ctx, Audio{
		Data:     data,
		Filename: "audio." + ExtensionFor(mimeType),
		Prompt:   req.Description,
	})
	if err != nil {
		s.logger.Error("转写失败", slog.String("blob_id", req.SourceBlobID), slog.Any("error", err))
		resp.ErrorMessage = xerrors.DetailOf(err)
		return resp
	}
	s.logger.Info("转写完成", slog.String("blob_id", req.SourceBlobID), slog.Int("chars", len(transcript)))
	resp.Transcript = transcript
	resp.Success = true
	return resp
}

// Handle 是聊天入口：转写所有音频附件与文本中的音频链接，结果按行拼接。
func (s *Service) Handle(ctx context.Context, req agent.Request) string {
	var transcripts []string

	for _, att := range req.Attachments {
		if len(att.Data) == 0 || !IsAudioMime(att.MimeType) {
			continue
		}
		text, err := s.transcribe(ctx, Audio{Data: att.Data, Filename: "audio." + ExtensionFor(att.MimeType)})
		if err != nil {
			transcripts = append(transcripts, "❌ Transcription failed: "+xerrors.DetailOf(err))
			continue
		}
		transcripts = append(transcripts, text)
	}

	if link := firstURL(req.Text); link != "" && s.fetcher != nil {
		data, _, err := s.fetcher.FetchURL(ctx, link)
		if err != nil {
			transcripts = append(transcripts, "❌ Could not download audio → "+xerrors.DetailOf(err))
		} else {
			ext := strings.TrimPrefix(path.Ext(strings.SplitN(link, "?", 2)[0]), ".")
			if ext == "" {
				ext = "mp3"
			}
			text, err := s.transcribe(ctx, Audio{Data: data, Filename: "audio." + ext})
			if err != nil {
				transcripts = append(transcripts, "❌ Transcription failed: "+xerrors.DetailOf(err))
			} else {
				transcripts = append(transcripts, text)
			}
		}
	}

	if len(transcripts) == 0 {
		return NoAudioReply
	}
	return strings.Join(transcripts, "\n")
}

func (s *Service) transcribe(ctx context.Context, audio Audio) (string, error) {
	if s.transcriber == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "未配置语音转写服务")
	}
	return s.transcriber.Transcribe(ctx, audio)
}

func firstURL(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	if strings.HasPrefix(fields[0], "http://") || strings.HasPrefix(fields[0], "https://") {
		return fields[0]
	}
	return ""
}

// IsAudioMime 判断 MIME 类型是否为音频。
func IsAudioMime(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "audio/")
}

// ExtensionFor 由 MIME 子类型推导文件扩展名，如 audio/wav → wav。
func ExtensionFor(mimeType string) string {
	_, sub, ok := strings.Cut(strings.ToLower(strings.TrimSpace(mimeType)), "/")
	if !ok || sub == "" {
		return "mp3"
	}
	sub, _, _ = strings.Cut(sub, ";")
	sub = strings.TrimPrefix(strings.TrimSpace(sub), "x-")
	if sub == "" {
		return "mp3"
	}
	return sub
}
