package telegram

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dataanalyst/internal/agents"
	"dataanalyst/internal/services/analyst"
	"dataanalyst/pkg/errors"
	"dataanalyst/pkg/logger"
	"dataanalyst/pkg/telegram"
	"dataanalyst/pkg/templates"
)

type sentMessage struct {
	chatID int64
	text   string
	opts   telegram.MessageOptions
}

type fakeBot struct {
	mu       sync.Mutex
	sent     []sentMessage
	typing   int
	rejectMD bool
	handler  func(telegram.Update)
}

func (b *fakeBot) Start(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }
func (b *fakeBot) Stop()                           {}
func (b *fakeBot) SetHandler(h func(telegram.Update)) {
	b.handler = h
}

func (b *fakeBot) SendMessage(chatID int64, text string) error {
	_, err := b.SendMessageWithOptions(chatID, text, telegram.MessageOptions{})
	return err
}

func (b *fakeBot) SendMessageWithOptions(chatID int64, text string, opts telegram.MessageOptions) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rejectMD && opts.ParseMode == telegram.ParseModeMarkdownV2 {
		return 0, errors.New("Bad Request: can't parse entities")
	}
	b.sent = append(b.sent, sentMessage{chatID: chatID, text: text, opts: opts})
	return len(b.sent), nil
}

func (b *fakeBot) SendTyping(int64) error {
	b.typing++
	return nil
}

func (b *fakeBot) texts() []string {
	out := make([]string, 0, len(b.sent))
	for _, m := range b.sent {
		out = append(out, m.text)
	}
	return out
}

type fakeAnalyst struct {
	answer   *agents.Answer
	err      error
	requests []analyst.Request
	resets   []string
}

func (f *fakeAnalyst) Ask(_ context.Context, req analyst.Request) (*agents.Answer, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.answer, nil
}

func (f *fakeAnalyst) Reset(_ context.Context, userID, sessionID string) error {
	f.resets = append(f.resets, userID+"/"+sessionID)
	return nil
}

func newTestHandler(t *testing.T, bot *fakeBot, svc *fakeAnalyst) *Handler {
	t.Helper()
	return NewHandler(bot, svc, templates.Get(), Config{QuestionTimeout: time.Minute}, logger.NewForTest(zap.NewNop()))
}

func textMessage(chatID int64, text string) *telegram.Message {
	msg := &telegram.Message{
		MessageID: 7,
		From:      &telegram.User{ID: chatID, FirstName: "Ada"},
		Chat:      &telegram.Chat{ID: chatID, Type: "private"},
		Text:      text,
	}
	msg.ParseCommand()
	return msg
}

func TestHandler_QuestionIsAnswered(t *testing.T) {
	bot := &fakeBot{}
	svc := &fakeAnalyst{answer: &agents.Answer{
		Text:         "There are 3 open roles (Atlanta).",
		ToolCalls:    []agents.ToolCallTrace{{Name: "execute_sql"}},
		InputTokens:  1200,
		OutputTokens: 34,
	}}
	h := newTestHandler(t, bot, svc)

	require.NoError(t, h.HandleMessage(context.Background(), textMessage(42, "How many roles in Atlanta?")))

	require.Len(t, svc.requests, 1)
	assert.Equal(t, analyst.Request{UserID: "tg-42", SessionID: "tg-chat-42", Question: "How many roles in Atlanta?"}, svc.requests[0])
	assert.Equal(t, 1, bot.typing)

	require.Len(t, bot.sent, 1)
	sent := bot.sent[0]
	assert.Equal(t, telegram.ParseModeMarkdownV2, sent.opts.ParseMode)
	assert.Equal(t, 7, sent.opts.ReplyToMessageID)
	assert.Contains(t, sent.text, `There are 3 open roles \(Atlanta\)\.`)
	assert.Contains(t, sent.text, "`1 query · 1,234 tokens`")
}

func TestHandler_AskCommand(t *testing.T) {
	bot := &fakeBot{}
	svc := &fakeAnalyst{answer: &agents.Answer{Text: "42"}}
	h := newTestHandler(t, bot, svc)

	require.NoError(t, h.HandleMessage(context.Background(), textMessage(1, "/ask@AnalystBot average salary?")))

	require.Len(t, svc.requests, 1)
	assert.Equal(t, "average salary?", svc.requests[0].Question)
}

func TestHandler_LongAnswerIsSplit(t *testing.T) {
	bot := &fakeBot{}
	long := strings.Repeat(strings.Repeat("x", 99)+"\n", 50)
	svc := &fakeAnalyst{answer: &agents.Answer{Text: long, InputTokens: 10}}
	h := newTestHandler(t, bot, svc)

	require.NoError(t, h.HandleMessage(context.Background(), textMessage(5, "list everything")))

	require.Len(t, bot.sent, 3)
	for _, m := range bot.sent {
		assert.LessOrEqual(t, len([]rune(m.text)), templates.TelegramMessageLimit)
	}
	assert.Equal(t, 7, bot.sent[0].opts.ReplyToMessageID)
	assert.Zero(t, bot.sent[1].opts.ReplyToMessageID)
	assert.NotContains(t, bot.sent[0].text, "tokens")
	assert.Contains(t, bot.sent[2].text, "10 tokens")
}

func TestHandler_MarkdownRejectedFallsBackToPlainText(t *testing.T) {
	bot := &fakeBot{rejectMD: true}
	svc := &fakeAnalyst{answer: &agents.Answer{Text: "plain *answer*"}}
	h := newTestHandler(t, bot, svc)

	require.NoError(t, h.HandleMessage(context.Background(), textMessage(5, "q")))

	assert.Equal(t, []string{"plain *answer*"}, bot.texts())
}

func TestHandler_Failures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "rate limited", err: errors.Wrap(errors.ErrRateLimitExceeded, "more than 20 questions per minute"), want: "faster than I can answer"},
		{name: "timeout", err: errors.Wrap(errors.ErrTimeout, "question exceeded 3m0s"), want: "took too long"},
		{name: "invalid", err: errors.Wrap(errors.ErrInvalidInput, "question is too long"), want: "under 4,000 characters"},
		{name: "internal", err: errors.ErrInternal, want: "Something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := &fakeBot{}
			h := newTestHandler(t, bot, &fakeAnalyst{err: tt.err})

			err := h.HandleMessage(context.Background(), textMessage(9, "q"))

			assert.ErrorIs(t, err, tt.err)
			require.Len(t, bot.sent, 1)
			assert.Contains(t, bot.sent[0].text, tt.want)
		})
	}
}

func TestHandler_Commands(t *testing.T) {
	bot := &fakeBot{}
	svc := &fakeAnalyst{}
	h := newTestHandler(t, bot, svc)
	ctx := context.Background()

	t.Run("start renders welcome", func(t *testing.T) {
		require.NoError(t, h.HandleMessage(ctx, textMessage(3, "/start")))
		last := bot.sent[len(bot.sent)-1]
		assert.Equal(t, telegram.ParseModeMarkdownV2, last.opts.ParseMode)
		assert.Contains(t, last.text, "Hi Ada\\!")
		assert.Contains(t, last.text, "Atlanta?")
	})

	t.Run("reset clears the chat session", func(t *testing.T) {
		require.NoError(t, h.HandleMessage(ctx, textMessage(3, "/new")))
		assert.Equal(t, []string{"tg-3/tg-chat-3"}, svc.resets)
		assert.Contains(t, bot.sent[len(bot.sent)-1].text, "Conversation cleared")
	})

	t.Run("help lists commands", func(t *testing.T) {
		require.NoError(t, h.HandleMessage(ctx, textMessage(3, "/help")))
		help := bot.sent[len(bot.sent)-1].text
		assert.Contains(t, help, "/ask - ")
		assert.Contains(t, help, "/reset - ")
		assert.NotContains(t, help, "/new")
	})

	t.Run("unknown command", func(t *testing.T) {
		require.NoError(t, h.HandleMessage(ctx, textMessage(3, "/trade BTC")))
		assert.Contains(t, bot.sent[len(bot.sent)-1].text, "Unknown command: /trade")
	})

	assert.Empty(t, svc.requests)
}

func TestHandler_IgnoresBotsAndEmptyQuestions(t *testing.T) {
	bot := &fakeBot{}
	svc := &fakeAnalyst{}
	h := newTestHandler(t, bot, svc)

	fromBot := textMessage(4, "hello")
	fromBot.From.IsBot = true
	require.NoError(t, h.HandleMessage(context.Background(), fromBot))
	assert.Empty(t, bot.sent)

	require.NoError(t, h.HandleMessage(context.Background(), textMessage(4, "/ask")))
	assert.Empty(t, svc.requests)
	require.Len(t, bot.sent, 1)
	assert.Contains(t, bot.sent[0].text, "Send me a question")
}
