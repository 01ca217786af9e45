// Package telegram is a small abstraction over the Telegram Bot API used by
// the chat front-end. Adapters live under adapters/.
package telegram

import (
	"context"
)

// Parse modes accepted by SendMessageWithOptions
const (
	ParseModeMarkdownV2 = "MarkdownV2"
	ParseModeHTML       = "HTML"
	ParseModeNone       = ""
)

// Bot interface abstracts telegram bot operations (for dependency injection)
type Bot interface {
	// Start polls for updates until ctx is done
	Start(ctx context.Context) error

	// Stop stops the bot
	Stop()

	// SetHandler sets update handler
	SetHandler(handler func(Update))

	// SendMessage sends a plain text message (blocking)
	SendMessage(chatID int64, text string) error

	// SendMessageWithOptions sends message with custom options and returns its id
	SendMessageWithOptions(chatID int64, text string, opts MessageOptions) (int, error)

	// SendTyping shows the "typing..." chat action
	SendTyping(chatID int64) error
}

// MessageOptions defines options for sending messages
type MessageOptions struct {
	// ParseMode (MarkdownV2, HTML or empty for plain text)
	ParseMode string

	// DisableWebPagePreview disables link previews
	DisableWebPagePreview bool

	// DisableNotification sends message silently
	DisableNotification bool

	// ReplyToMessageID replies to specific message
	ReplyToMessageID int
}
