package telegram

import (
	"strings"
)

// Update represents an incoming Telegram update (abstraction from tgbotapi)
type Update struct {
	UpdateID int `json:"update_id"`

	// Message is present if this is a regular message
	Message *Message `json:"message,omitempty"`
}

// Message represents a Telegram message
type Message struct {
	MessageID int    `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      *Chat  `json:"chat"`
	Text      string `json:"text,omitempty"`
	IsCommand bool   `json:"-"` // Computed field, not from JSON
	Command   string `json:"-"` // Parsed command (without /)
	Arguments string `json:"-"` // Command arguments
}

// User represents a Telegram user
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	IsBot     bool   `json:"is_bot,omitempty"`
}

// Chat represents a Telegram chat
type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"` // "private", "group", "supergroup", "channel"
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
}

// HasMessage checks if update contains a message
func (u *Update) HasMessage() bool {
	return u.Message != nil
}

// ChatID returns the chat the message was sent to, or 0
func (m *Message) ChatID() int64 {
	if m == nil || m.Chat == nil {
		return 0
	}
	return m.Chat.ID
}

// ParseCommand parses command from message text.
// Format: /command args or /command@botname args
func (m *Message) ParseCommand() {
	if m == nil || m.Text == "" {
		return
	}

	if m.Text[0] != '/' {
		m.IsCommand = false
		return
	}
	m.IsCommand = true

	parts := strings.Fields(m.Text[1:])
	if len(parts) == 0 {
		return
	}

	command, _, _ := strings.Cut(parts[0], "@")
	m.Command = command
	m.Arguments = strings.Join(parts[1:], " ")
}
