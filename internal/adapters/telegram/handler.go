// Package telegram connects the chat bot to the analyst service. Every chat
// keeps one agent session until the user sends /reset.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"dataanalyst/internal/agents"
	"dataanalyst/internal/metrics"
	"dataanalyst/internal/services/analyst"
	"dataanalyst/pkg/errors"
	"dataanalyst/pkg/logger"
	"dataanalyst/pkg/telegram"
	"dataanalyst/pkg/templates"
)

// answerChunkRunes leaves room for MarkdownV2 escaping, which can double the
// length of a chunk.
const answerChunkRunes = templates.TelegramMessageLimit / 2

// Analyst answers questions for a user session
type Analyst interface {
	Ask(ctx context.Context, req analyst.Request) (*agents.Answer, error)
	Reset(ctx context.Context, userID, sessionID string) error
}

// Renderer renders message templates by id
type Renderer interface {
	Render(id string, data any) (string, error)
}

// Config holds handler settings
type Config struct {
	QuestionTimeout time.Duration
	Examples        []string
}

// Handler processes Telegram updates using pkg/telegram framework
type Handler struct {
	bot      telegram.Bot
	commands *telegram.CommandRegistry
	analyst  Analyst
	tmpl     Renderer
	cfg      Config
	log      *logger.Logger
}

// DefaultExamples are shown by /start and /help
var DefaultExamples = []string{
	"How many Data Engineer roles are open in Atlanta?",
	"What is the average salary for senior roles?",
	"How many candidates applied for Data Scientist roles?",
}

// NewHandler creates the handler and registers its commands
func NewHandler(bot telegram.Bot, svc Analyst, tmpl Renderer, cfg Config, log *logger.Logger) *Handler {
	if len(cfg.Examples) == 0 {
		cfg.Examples = DefaultExamples
	}

	h := &Handler{
		bot:     bot,
		analyst: svc,
		tmpl:    tmpl,
		cfg:     cfg,
		log:     log.With("component", "telegram_handler"),
	}

	h.commands = telegram.NewCommandRegistry(bot, log)
	h.commands.Use(telegram.RecoveryMiddleware(h.log))
	h.commands.Use(telegram.LoggingMiddleware(h.log))
	h.commands.Use(telegram.MetricsMiddleware(metrics.RecordTelegramCommand))

	h.commands.Register(telegram.CommandConfig{
		Name:        "start",
		Description: "Introduction and example questions",
		Handler:     h.handleStart,
	})
	h.commands.Register(telegram.CommandConfig{
		Name:        "help",
		Description: "Show available commands",
		Handler:     h.handleHelp,
	})
	h.commands.Register(telegram.CommandConfig{
		Name:        "reset",
		Aliases:     []string{"new"},
		Description: "Forget the conversation and start over",
		Handler:     h.handleReset,
	})
	h.commands.Register(telegram.CommandConfig{
		Name:        "ask",
		Description: "Ask a question (plain messages work too)",
		Handler: func(c *telegram.CommandContext) error {
			return h.answer(c.Ctx, c.Message, c.Args)
		},
	})

	return h
}

// HandleUpdate is the bot's update callback
func (h *Handler) HandleUpdate(update telegram.Update) {
	if !update.HasMessage() {
		return
	}
	if err := h.HandleMessage(context.Background(), update.Message); err != nil {
		h.log.Errorw("Failed to handle message",
			"message_id", update.Message.MessageID,
			"chat_id", update.Message.ChatID(),
			"error", err,
		)
	}
}

// HandleMessage routes commands to the registry and everything else to the
// analyst.
func (h *Handler) HandleMessage(ctx context.Context, msg *telegram.Message) error {
	if msg == nil || msg.Chat == nil || (msg.From != nil && msg.From.IsBot) {
		return nil
	}

	if msg.IsCommand {
		return h.commands.Handle(ctx, msg)
	}
	return h.answer(ctx, msg, msg.Text)
}

// UserID is the analyst user for a Telegram chat
func UserID(chatID int64) string {
	return "tg-" + strconv.FormatInt(chatID, 10)
}

// SessionID is the agent session a chat talks to
func SessionID(chatID int64) string {
	return "tg-chat-" + strconv.FormatInt(chatID, 10)
}

func (h *Handler) handleStart(c *telegram.CommandContext) error {
	data := struct {
		FirstName string
		Examples  []string
	}{Examples: h.cfg.Examples}
	if c.From != nil {
		data.FirstName = c.From.FirstName
	}

	text, err := h.tmpl.Render(templates.TelegramWelcome, data)
	if err != nil {
		return errors.Wrap(err, "render welcome")
	}
	_, err = c.Bot.SendMessageWithOptions(c.ChatID, text, telegram.MessageOptions{ParseMode: telegram.ParseModeMarkdownV2})
	return err
}

func (h *Handler) handleHelp(c *telegram.CommandContext) error {
	var b strings.Builder
	b.WriteString("Ask me anything about job openings and candidates.\n\n")
	for _, cmd := range h.commands.GetCommands(false) {
		fmt.Fprintf(&b, "/%s - %s\n", cmd.Name, cmd.Description)
	}
	b.WriteString("\nFor example:\n")
	for _, ex := range h.cfg.Examples {
		fmt.Fprintf(&b, "- %s\n", ex)
	}
	return c.Reply(b.String())
}

func (h *Handler) handleReset(c *telegram.CommandContext) error {
	if err := h.analyst.Reset(c.Ctx, UserID(c.ChatID), SessionID(c.ChatID)); err != nil {
		// Nothing to forget yet
		if !errors.Is(err, errors.ErrNotFound) {
			return err
		}
	}
	return c.Reply("Conversation cleared. Ask a new question.")
}

func (h *Handler) answer(ctx context.Context, msg *telegram.Message, question string) error {
	chatID := msg.ChatID()
	if strings.TrimSpace(question) == "" {
		return h.bot.SendMessage(chatID, "Send me a question, for example:\n"+h.cfg.Examples[0])
	}

	if h.cfg.QuestionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.QuestionTimeout)
		defer cancel()
	}

	if err := h.bot.SendTyping(chatID); err != nil {
		h.log.Debugw("Typing indicator failed", "chat_id", chatID, "error", err)
	}

	ans, err := h.analyst.Ask(ctx, analyst.Request{
		UserID:    UserID(chatID),
		SessionID: SessionID(chatID),
		Question:  question,
	})
	if err != nil {
		if sendErr := h.bot.SendMessage(chatID, failureText(err)); sendErr != nil {
			h.log.Errorw("Failed to send error reply", "chat_id", chatID, "error", sendErr)
		}
		return err
	}

	return h.sendAnswer(chatID, msg.MessageID, ans)
}

func (h *Handler) sendAnswer(chatID int64, replyTo int, ans *agents.Answer) error {
	chunks := templates.SplitMessage(ans.Text, answerChunkRunes)
	for i, chunk := range chunks {
		data := struct {
			Text   string
			Footer string
		}{Text: chunk}
		if i == len(chunks)-1 {
			data.Footer = footer(ans)
		}

		text, err := h.tmpl.Render(templates.TelegramAnswer, data)
		if err != nil {
			return errors.Wrap(err, "render answer")
		}

		opts := telegram.MessageOptions{ParseMode: telegram.ParseModeMarkdownV2, DisableWebPagePreview: true}
		if i == 0 {
			opts.ReplyToMessageID = replyTo
		}
		if _, err := h.bot.SendMessageWithOptions(chatID, text, opts); err != nil {
			// Fall back to plain text if Telegram rejects the markup
			if plainErr := h.bot.SendMessage(chatID, chunk); plainErr != nil {
				return errors.Wrap(plainErr, "send answer")
			}
		}
	}
	return nil
}

func footer(ans *agents.Answer) string {
	parts := make([]string, 0, 3)
	switch n := len(ans.ToolCalls); n {
	case 0:
	case 1:
		parts = append(parts, "1 query")
	default:
		parts = append(parts, fmt.Sprintf("%d queries", n))
	}
	if ans.Duration > 0 {
		parts = append(parts, ans.Duration.Round(100*time.Millisecond).String())
	}
	if total := ans.TotalTokens(); total > 0 {
		parts = append(parts, humanize.Comma(int64(total))+" tokens")
	}
	return strings.Join(parts, " · ")
}

func failureText(err error) string {
	switch {
	case errors.Is(err, errors.ErrRateLimitExceeded):
		return "You're asking faster than I can answer. Please wait a minute and try again."
	case errors.Is(err, errors.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "That question took too long to answer. Try narrowing it down."
	case errors.Is(err, errors.ErrInvalidInput):
		return fmt.Sprintf("I can't take that question. Keep it under %s characters.", humanize.Comma(analyst.MaxQuestionLength))
	default:
		return "Something went wrong while answering. Please try again or rephrase the question."
	}
}
