package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"dataanalyst/pkg/errors"
	"dataanalyst/pkg/logger"
)

// CommandContext contains all data for command execution
type CommandContext struct {
	Ctx     context.Context
	From    *User
	ChatID  int64
	Command string
	Args    string
	Message *Message
	Bot     Bot // Bot interface for sending messages
}

// Reply sends plain text to the chat the command came from
func (c *CommandContext) Reply(text string) error {
	return c.Bot.SendMessage(c.ChatID, text)
}

// CommandHandler is a function that handles a command
type CommandHandler func(ctx *CommandContext) error

// CommandMiddleware wraps command handlers with additional logic
type CommandMiddleware func(next CommandHandler) CommandHandler

// CommandConfig defines a command registration
type CommandConfig struct {
	Name        string              // Primary command name (e.g., "reset")
	Aliases     []string            // Alternative names (e.g., ["new"])
	Description string              // Help text
	Handler     CommandHandler      // Command handler function
	Middleware  []CommandMiddleware // Command-specific middleware
	Hidden      bool                // Don't show in /help
}

// CommandRegistry manages command registration and routing
type CommandRegistry struct {
	commands   map[string]*CommandConfig // command name -> config
	middleware []CommandMiddleware       // Global middleware
	bot        Bot
	log        *logger.Logger
}

// NewCommandRegistry creates a new command registry
func NewCommandRegistry(bot Bot, log *logger.Logger) *CommandRegistry {
	return &CommandRegistry{
		commands: make(map[string]*CommandConfig),
		bot:      bot,
		log:      log.With("component", "command_registry"),
	}
}

// Register registers a command with the registry
func (cr *CommandRegistry) Register(config CommandConfig) {
	if config.Name == "" {
		cr.log.Errorw("Cannot register command without name")
		return
	}
	if config.Handler == nil {
		cr.log.Errorw("Cannot register command without handler", "command", config.Name)
		return
	}

	cr.commands[config.Name] = &config
	for _, alias := range config.Aliases {
		cr.commands[alias] = &config
	}

	cr.log.Debugw("Registered command",
		"name", config.Name,
		"aliases", config.Aliases,
	)
}

// Use adds global middleware (applied to all commands)
func (cr *CommandRegistry) Use(middleware CommandMiddleware) {
	cr.middleware = append(cr.middleware, middleware)
}

// Handle routes a parsed command message to its handler
func (cr *CommandRegistry) Handle(ctx context.Context, msg *Message) error {
	command := strings.ToLower(strings.TrimSpace(msg.Command))
	chatID := msg.ChatID()

	config, exists := cr.commands[command]
	if !exists {
		cr.log.Debugw("Unknown command", "command", command, "chat_id", chatID)
		return cr.bot.SendMessage(chatID, fmt.Sprintf("Unknown command: /%s\n\nUse /help to see available commands.", command))
	}

	cmdCtx := &CommandContext{
		Ctx:     ctx,
		From:    msg.From,
		ChatID:  chatID,
		Command: config.Name,
		Args:    msg.Arguments,
		Message: msg,
		Bot:     cr.bot,
	}

	// Command-specific middleware runs inside the global chain
	handler := config.Handler
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		handler = config.Middleware[i](handler)
	}
	for i := len(cr.middleware) - 1; i >= 0; i-- {
		handler = cr.middleware[i](handler)
	}

	if err := handler(cmdCtx); err != nil {
		cr.log.Errorw("Command execution failed",
			"command", config.Name,
			"chat_id", chatID,
			"error", err,
		)
		return cr.handleCommandError(cmdCtx, err)
	}

	return nil
}

// GetCommands returns registered commands sorted by name (for /help)
func (cr *CommandRegistry) GetCommands(includeHidden bool) []*CommandConfig {
	commands := make([]*CommandConfig, 0, len(cr.commands))
	for name, config := range cr.commands {
		// Aliases point to the same config
		if name != config.Name {
			continue
		}
		if config.Hidden && !includeHidden {
			continue
		}
		commands = append(commands, config)
	}

	sort.Slice(commands, func(i, j int) bool {
		return commands[i].Name < commands[j].Name
	})
	return commands
}

// HasCommand checks if command is registered
func (cr *CommandRegistry) HasCommand(command string) bool {
	_, exists := cr.commands[strings.ToLower(strings.TrimSpace(command))]
	return exists
}

func (cr *CommandRegistry) handleCommandError(cmdCtx *CommandContext, err error) error {
	var valErr *errors.ValidationError
	if errors.As(err, &valErr) {
		return cmdCtx.Reply(valErr.Message)
	}
	return cmdCtx.Reply("Something went wrong. Please try again.")
}
