package telegram

import (
	"fmt"
	"time"

	"dataanalyst/pkg/logger"
)

// LoggingMiddleware logs command execution with timing
func LoggingMiddleware(log *logger.Logger) CommandMiddleware {
	return func(next CommandHandler) CommandHandler {
		return func(ctx *CommandContext) error {
			start := time.Now()
			err := next(ctx)

			if err != nil {
				log.Errorw("Command failed",
					"command", ctx.Command,
					"chat_id", ctx.ChatID,
					"duration_ms", time.Since(start).Milliseconds(),
					"error", err,
				)
			} else {
				log.Debugw("Command completed",
					"command", ctx.Command,
					"chat_id", ctx.ChatID,
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}

			return err
		}
	}
}

// RecoveryMiddleware recovers from panics in command handlers
func RecoveryMiddleware(log *logger.Logger) CommandMiddleware {
	return func(next CommandHandler) CommandHandler {
		return func(ctx *CommandContext) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Errorw("Command handler panicked",
						"command", ctx.Command,
						"chat_id", ctx.ChatID,
						"panic", r,
					)
					err = fmt.Errorf("command /%s panicked: %v", ctx.Command, r)
				}
			}()

			return next(ctx)
		}
	}
}

// MetricsMiddleware tracks command usage metrics
func MetricsMiddleware(recordMetric func(command string, success bool, duration time.Duration)) CommandMiddleware {
	return func(next CommandHandler) CommandHandler {
		return func(ctx *CommandContext) error {
			start := time.Now()
			err := next(ctx)
			recordMetric(ctx.Command, err == nil, time.Since(start))
			return err
		}
	}
}
