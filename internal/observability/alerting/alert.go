// Package alerting fans out operational events, such as a validateAnswer
// transaction that could not be submitted, to the audit log and chat channels.
package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	xerrors "AskWorld-Agents/internal/errors"
	"AskWorld-Agents/pkg/logger"
)

// Channel 表示通知渠道。
type Channel string

// 支持的通知渠道
const (
	ChannelAudit    Channel = "audit"
	ChannelTelegram Channel = "telegram"
)

// Event 描述一次需要告警的事件。
type Event struct {
	Code       xerrors.Code
	Message    string
	Severity   xerrors.Severity
	Agent      string
	Metadata   map[string]string
	OccurredAt time.Time
}

// FromError 根据统一错误构造事件，错误自带的 metadata 与 extra 合并。
func FromError(agent string, err error, extra map[string]string) Event {
	event := Event{
		Code:       xerrors.CodeOf(err),
		Message:    xerrors.DetailOf(err),
		Severity:   xerrors.SeverityWarning,
		Agent:      agent,
		Metadata:   map[string]string{},
		OccurredAt: time.Now().UTC(),
	}
	if e, ok := xerrors.From(err); ok {
		event.Severity = e.Severity()
		for k, v := range e.Metadata() {
			event.Metadata[k] = v
		}
	}
	for k, v := range extra {
		event.Metadata[k] = v
	}
	return event
}

// Notifier 负责将事件发送到指定渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher 将事件广播给多个通知器。
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher 实现将事件投递到多个通知器的逻辑。
type FanoutDispatcher struct {
	notifiers map[Channel]Notifier
}

// NewFanout 创建一个新的 FanoutDispatcher。
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		set[n.Channel()] = n
	}
	return &FanoutDispatcher{notifiers: set}
}

// Notify 将事件广播至所有注册渠道。
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// AuditNotifier 把事件写入审计日志。
type AuditNotifier struct{}

// Channel 返回审计渠道。
func (AuditNotifier) Channel() Channel { return ChannelAudit }

// Notify 写入一条审计记录。
func (AuditNotifier) Notify(_ context.Context, event Event) error {
	attrs := []any{
		slog.String("code", string(event.Code)),
		slog.String("severity", string(event.Severity)),
		slog.String("agent", event.Agent),
		slog.String("message", event.Message),
	}
	for _, k := range sortedKeys(event.Metadata) {
		attrs = append(attrs, slog.String(k, event.Metadata[k]))
	}
	logger.Audit().Warn("alert", attrs...)
	return nil
}

// TelegramSender 是发送 Telegram 消息所需的能力。
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier 通过 Telegram 机器人把告警发到运维会话。
type TelegramNotifier struct {
	Sender TelegramSender
	ChatID int64
}

// NewTelegramNotifier 使用机器人令牌创建通知器。
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram alert bot init: %w", err)
	}
	return &TelegramNotifier{Sender: bot, ChatID: chatID}, nil
}

// Channel 返回 Telegram 渠道。
func (n *TelegramNotifier) Channel() Channel { return ChannelTelegram }

// Notify 发送 Telegram 消息。
func (n *TelegramNotifier) Notify(_ context.Context, event Event) error {
	if n == nil || n.Sender == nil || n.ChatID == 0 {
		logger.L().Warn("TelegramNotifier 未正确配置，跳过发送", slog.String("code", string(event.Code)))
		return nil
	}
	_, err := n.Sender.Send(tgbotapi.NewMessage(n.ChatID, Format(event)))
	return err
}

// Format 生成告警的纯文本内容。
func Format(event Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 [%s] %s on %s\n", event.Severity, event.Code, event.Agent)
	fmt.Fprintf(&b, "🕐 %s\n%s", event.OccurredAt.Format(time.RFC3339), event.Message)
	for _, k := range sortedKeys(event.Metadata) {
		fmt.Fprintf(&b, "\n- %s: %s", k, event.Metadata[k])
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
