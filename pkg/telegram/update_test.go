package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_ParseCommand(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		wantIsCommand bool
		wantCommand   string
		wantArgs      string
	}{
		{name: "simple command", text: "/start", wantIsCommand: true, wantCommand: "start"},
		{name: "command with args", text: "/ask open roles", wantIsCommand: true, wantCommand: "ask", wantArgs: "open roles"},
		{name: "collapses whitespace", text: "/ask  open\troles\nin Atlanta", wantIsCommand: true, wantCommand: "ask", wantArgs: "open roles in Atlanta"},
		{name: "command with @botname", text: "/reset@AnalystBot", wantIsCommand: true, wantCommand: "reset"},
		{name: "command with @botname and args", text: "/help@AnalystBot sql", wantIsCommand: true, wantCommand: "help", wantArgs: "sql"},
		{name: "regular text", text: "How many candidates applied?"},
		{name: "lone slash", text: "/", wantIsCommand: true},
		{name: "empty text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &Message{Text: tt.text}
			msg.ParseCommand()

			assert.Equal(t, tt.wantIsCommand, msg.IsCommand)
			assert.Equal(t, tt.wantCommand, msg.Command)
			assert.Equal(t, tt.wantArgs, msg.Arguments)
		})
	}
}

func TestMessage_ChatID(t *testing.T) {
	var nilMsg *Message
	assert.Zero(t, nilMsg.ChatID())
	assert.Zero(t, (&Message{}).ChatID())
	assert.Equal(t, int64(42), (&Message{Chat: &Chat{ID: 42}}).ChatID())
}
