// Package tgbotapi implements telegram.Bot on top of go-telegram-bot-api.
package tgbotapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"dataanalyst/pkg/errors"
	"dataanalyst/pkg/logger"
	"dataanalyst/pkg/telegram"
)

// Bot represents a Telegram bot that implements telegram.Bot interface
type Bot struct {
	api         *tgbotapi.BotAPI
	log         *logger.Logger
	mu          sync.RWMutex
	running     bool
	timeout     int
	msgHandler  func(telegram.Update)
	rateLimiter *rate.Limiter
}

// Config contains Telegram bot configuration
type Config struct {
	Token          string
	Debug          bool
	Timeout        int // Long polling timeout in seconds
	HTTPTimeout    time.Duration
	RateLimitBurst int // Rate limiter burst (default: 30)
	RateLimitRate  int // Rate limiter per second (default: 20)
}

// NewBot creates a new Telegram bot instance that implements telegram.Bot interface
func NewBot(cfg Config, log *logger.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "telegram bot token is required")
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 60
	}
	if cfg.HTTPTimeout == 0 {
		// Must outlive the long polling timeout
		cfg.HTTPTimeout = time.Duration(cfg.Timeout+10) * time.Second
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 30
	}
	if cfg.RateLimitRate == 0 {
		cfg.RateLimitRate = 20
	}

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}
	api.Debug = cfg.Debug

	log.Infof("Authorized on account %s", api.Self.UserName)

	return &Bot{
		api:         api,
		timeout:     cfg.Timeout,
		log:         log.With("component", "telegram_bot"),
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRate), cfg.RateLimitBurst),
	}, nil
}

// Start polls for updates until ctx is done. Each update is handled in its
// own goroutine.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return errors.New("bot is already running")
	}
	b.running = true
	b.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.timeout
	updates := b.api.GetUpdatesChan(u)

	b.log.Infow("Starting to poll for updates")

	for {
		select {
		case <-ctx.Done():
			b.log.Infow("Stopping bot due to context cancellation")
			b.Stop()
			return ctx.Err()

		case tgUpdate, ok := <-updates:
			if !ok {
				return nil
			}
			b.mu.RLock()
			handler := b.msgHandler
			b.mu.RUnlock()
			if handler != nil {
				go handler(convertUpdate(tgUpdate))
			}
		}
	}
}

// Stop stops the bot
func (b *Bot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	b.api.StopReceivingUpdates()
	b.running = false
	b.log.Infow("Bot stopped")
}

// SetHandler sets the update handler
func (b *Bot) SetHandler(handler func(telegram.Update)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgHandler = handler
}

// IsRunning checks if bot is currently polling
func (b *Bot) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// SendMessage sends a plain text message (blocking)
func (b *Bot) SendMessage(chatID int64, text string) error {
	_, err := b.SendMessageWithOptions(chatID, text, telegram.MessageOptions{})
	return err
}

// SendMessageWithOptions sends message with custom options
func (b *Bot) SendMessageWithOptions(chatID int64, text string, opts telegram.MessageOptions) (int, error) {
	if err := b.rateLimiter.Wait(context.Background()); err != nil {
		return 0, errors.Wrap(err, "rate limiter error")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = opts.ParseMode
	msg.DisableWebPagePreview = opts.DisableWebPagePreview
	msg.DisableNotification = opts.DisableNotification
	if opts.ReplyToMessageID > 0 {
		msg.ReplyToMessageID = opts.ReplyToMessageID
	}

	sent, err := b.api.Send(msg)
	if err != nil {
		b.log.Errorw("Failed to send message", "chat_id", chatID, "parse_mode", opts.ParseMode, "error", err)
		return 0, errors.Wrap(err, "failed to send telegram message")
	}

	return sent.MessageID, nil
}

// SendTyping shows the typing indicator; Telegram clears it after ~5s or
// on the next message.
func (b *Bot) SendTyping(chatID int64) error {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := b.api.Request(action); err != nil {
		return errors.Wrap(err, "failed to send chat action")
	}
	return nil
}

func convertUpdate(tgUpdate tgbotapi.Update) telegram.Update {
	update := telegram.Update{UpdateID: tgUpdate.UpdateID}
	if tgUpdate.Message != nil {
		update.Message = convertMessage(tgUpdate.Message)
	}
	return update
}

func convertMessage(tgMsg *tgbotapi.Message) *telegram.Message {
	msg := &telegram.Message{
		MessageID: tgMsg.MessageID,
		Text:      tgMsg.Text,
		IsCommand: tgMsg.IsCommand(),
	}

	if tgMsg.From != nil {
		msg.From = &telegram.User{
			ID:        tgMsg.From.ID,
			FirstName: tgMsg.From.FirstName,
			LastName:  tgMsg.From.LastName,
			Username:  tgMsg.From.UserName,
			IsBot:     tgMsg.From.IsBot,
		}
	}

	if tgMsg.Chat != nil {
		msg.Chat = &telegram.Chat{
			ID:       tgMsg.Chat.ID,
			Type:     tgMsg.Chat.Type,
			Title:    tgMsg.Chat.Title,
			Username: tgMsg.Chat.UserName,
		}
	}

	if msg.IsCommand {
		msg.Command = tgMsg.Command()
		msg.Arguments = tgMsg.CommandArguments()
	}

	return msg
}
