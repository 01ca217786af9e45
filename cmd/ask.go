package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"dataanalyst/internal/bootstrap"
	"dataanalyst/internal/services/analyst"
)

// AskCmd answers one question, given as flag or as positional arguments.
// Usage: data-analyst ask "How many roles are open in Atlanta?"
type AskCmd struct {
	Question string `short:"q" long:"question" description:"question text (defaults to the positional arguments)"`
	User     string `short:"u" long:"user" description:"user id" default:"cli"`
	Session  string `short:"s" long:"session" description:"continue an existing session"`
	Verbose  bool   `short:"v" long:"verbose" description:"print the queries the agent ran"`
}

func (a *AskCmd) Execute(args []string) error {
	question := strings.TrimSpace(a.Question)
	if question == "" {
		question = strings.TrimSpace(strings.Join(args, " "))
	}
	if question == "" {
		return errors.New("no question given")
	}

	return withCore(func(ctx context.Context, c *bootstrap.Container) error {
		ans, err := c.Services.Analyst.Ask(ctx, analyst.Request{
			UserID:    a.User,
			SessionID: a.Session,
			Question:  question,
		})
		if err != nil {
			return err
		}
		printAnswer(os.Stdout, ans, a.Verbose)
		return nil
	})
}
