package intent

import (
	"context"
	"log/slog"
	"strings"
)

// NoMessagePrompt 在用户既没有文本也没有附件时返回。
const NoMessagePrompt = "No message provided. Try sending a message or attaching a file!"

// ListComingSoon 是列出 blob 功能的占位回复。
const ListComingSoon = "📋 Blob listing feature coming soon! For now, you can use the blob ID from previous uploads to download files."

const cannedClarification = "🤔 I'm not quite sure what you'd like me to do!\n\n" +
	"I can help you with:\n" +
	"• 📤 **Upload files** - Attach a file or send me a URL\n" +
	"• 📝 **Upload text** - Send me any text to store as a blob\n" +
	"• 📥 **Download blobs** - Use `/download <blob_id>` to get a file\n" +
	"• 📋 **List blobs** - Use `/list` to see your stored files\n" +
	"• ❓ **Get help** - Use `/help` for more info\n\n" +
	"Could you clarify what you'd like to do? For example:\n" +
	"- \"Upload this file\" (with attachment)\n" +
	"- \"https://example.com/file.mp3\" (upload from URL)\n" +
	"- \"Hello world!\" (upload as text)\n" +
	"- \"/download Y3XBOEfW77JAon9Kl-pRDy0kRWTgqjxzjYEv0yMfO24\" (download blob)"

const helpText = "🤖 **Walrus Blob Storage Agent Help**\n\n" +
	"**Upload Operations:**\n" +
	"• Attach any file to upload it\n" +
	"• Send a URL (http:// or https://) to upload from URL\n" +
	"• Send text to upload as a text blob\n" +
	"• Use `/upload [description]` for explicit upload\n\n" +
	"**Download Operations:**\n" +
	"• `/download <blob_id>` - Download a specific blob\n\n" +
	"**Other Commands:**\n" +
	"• `/help` - Show this help message\n" +
	"• `/list` - List your blobs (coming soon)\n\n" +
	"**Examples:**\n" +
	"• `https://example.com/file.mp3` - Upload from URL\n" +
	"• `Hello world!` - Upload as text blob\n" +
	"• `/download Y3XBOEfW77JAon9Kl-pRDy0kRWTgqjxzjYEv0yMfO24` - Download blob\n\n" +
	"The agent will automatically detect your intent and perform the appropriate operation! 🚀"

// HelpText 返回命令帮助。
func HelpText() string {
	return helpText
}

// CannedClarification 返回大模型不可用时的固定澄清文本。
func CannedClarification() string {
	return cannedClarification
}

// Clarify 生成澄清回复，调用失败或返回为空时使用固定文本，结果总是非空。
func (c *Classifier) Clarify(ctx context.Context, text string) string {
	if c.model == nil {
		return cannedClarification
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reply, err := c.model.GenerateClarification(callCtx, text)
	if err != nil {
		c.logger.Warn("生成澄清消息失败", slog.Any("error", err))
		return cannedClarification
	}
	if reply = strings.TrimSpace(reply); reply == "" {
		return cannedClarification
	}
	return reply
}
