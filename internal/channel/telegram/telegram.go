// Package telegram connects an agent to a Telegram bot via long polling.
// Text and captions become the request text; documents, audio, voice notes
// and photos become URL attachments resolved through the agent's fetcher.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"AskWorld-Agents/internal/agent"
	"AskWorld-Agents/pkg/logger"
)

const (
	maxMessageLen = 4000
	pollTimeout   = 30
)

// Bot 是 *tgbotapi.BotAPI 中用到的方法子集。
type Bot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Config 配置 Telegram 入口。
type Config struct {
	Token     string
	AllowFrom []string
}

// Channel 把 Telegram 消息转交给智能体并回复到原会话。
type Channel struct {
	bot       Bot
	handler   agent.Handler
	fetcher   agent.URLFetcher
	allowFrom map[int64]bool
	logger    *slog.Logger
}

// New 使用令牌连接 Telegram。
func New(cfg Config, handler agent.Handler, fetcher agent.URLFetcher) (*Channel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	ch := NewWithBot(bot, cfg.AllowFrom, handler, fetcher)
	ch.logger.Info("telegram bot connected", slog.String("username", bot.Self.UserName), slog.Int64("id", bot.Self.ID))
	return ch, nil
}

// NewWithBot 使用已有的 Bot 实现创建入口，allowFrom 为空表示不限制用户。
func NewWithBot(bot Bot, allowFrom []string, handler agent.Handler, fetcher agent.URLFetcher) *Channel {
	allowed := make(map[int64]bool, len(allowFrom))
	for _, s := range allowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed[id] = true
		}
	}
	return &Channel{
		bot:       bot,
		handler:   handler,
		fetcher:   fetcher,
		allowFrom: allowed,
		logger:    logger.Named("telegram"),
	}
}

// Run 开始长轮询，直到上下文取消。每条消息在独立的 goroutine 中处理。
func (c *Channel) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := c.bot.GetUpdatesChan(u)
	c.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			c.logger.Info("telegram channel stopping")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go c.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate 处理一次更新，非消息类更新直接忽略。
func (c *Channel) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	if !c.isAllowed(msg.From.ID) {
		c.logger.Warn("unauthorized telegram user", slog.Int64("user_id", msg.From.ID))
		c.send(msg.Chat.ID, "⛔ Unauthorized. Your user ID is not in the allow list.")
		return
	}

	req := c.toRequest(msg)
	c.logger.Info("telegram message received",
		slog.Int64("chat_id", msg.Chat.ID),
		slog.Int("text_len", len(req.Text)),
		slog.Int("attachments", len(req.Attachments)))

	_, _ = c.bot.Send(tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping))
	req = agent.Resolve(ctx, req, c.fetcher, c.logger)
	c.send(msg.Chat.ID, c.handler.Handle(ctx, req))
}

func (c *Channel) toRequest(msg *tgbotapi.Message) agent.Request {
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	req := agent.Request{
		Text: strings.TrimSpace(text),
		Metadata: map[string]string{
			"channel":    "telegram",
			"chat_id":    strconv.FormatInt(msg.Chat.ID, 10),
			"message_id": strconv.Itoa(msg.MessageID),
		},
	}

	add := func(fileID, mimeType string) {
		link, err := c.bot.GetFileDirectURL(fileID)
		if err != nil {
			c.logger.Warn("获取文件链接失败", slog.String("file_id", fileID), slog.Any("error", err))
			return
		}
		req.Attachments = append(req.Attachments, agent.Attachment{MimeType: mimeType, URL: link})
	}
	if msg.Document != nil {
		add(msg.Document.FileID, msg.Document.MimeType)
	}
	if msg.Audio != nil {
		add(msg.Audio.FileID, orDefault(msg.Audio.MimeType, "audio/mpeg"))
	}
	if msg.Voice != nil {
		add(msg.Voice.FileID, orDefault(msg.Voice.MimeType, "audio/ogg"))
	}
	if n := len(msg.Photo); n > 0 {
		add(msg.Photo[n-1].FileID, "image/jpeg")
	}
	return req
}

func (c *Channel) isAllowed(userID int64) bool {
	return len(c.allowFrom) == 0 || c.allowFrom[userID]
}

// send 按 Telegram 的长度限制分段发送，优先在换行处切分。
func (c *Channel) send(chatID int64, text string) {
	for _, chunk := range splitMessage(text, maxMessageLen) {
		if _, err := c.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			c.logger.Error("telegram send failed", slog.Int64("chat_id", chatID), slog.Any("error", err))
			return
		}
	}
}

func splitMessage(text string, limit int) []string {
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut < limit/2 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
