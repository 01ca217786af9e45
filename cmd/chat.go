package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"dataanalyst/internal/bootstrap"
	"dataanalyst/internal/services/analyst"
	"dataanalyst/pkg/errors"
)

const chatPrompt = "> "

// ChatCmd runs a console session. Every line is a question; the session is
// kept across lines until /reset.
type ChatCmd struct {
	User    string `short:"u" long:"user" description:"user id" default:"cli"`
	Session string `short:"s" long:"session" description:"resume an existing session"`
	Verbose bool   `short:"v" long:"verbose" description:"print the queries the agent ran"`
}

func (c *ChatCmd) Execute(_ []string) error {
	return withCore(func(ctx context.Context, ctr *bootstrap.Container) error {
		repl := &chatLoop{
			analyst: ctr.Services.Analyst,
			userID:  c.User,
			session: c.Session,
			verbose: c.Verbose,
			out:     os.Stdout,
		}
		return repl.Run(ctx, os.Stdin)
	})
}

type chatLoop struct {
	analyst Analyst
	userID  string
	session string
	verbose bool
	out     io.Writer
}

// Run reads questions until EOF, /quit or context cancellation
func (l *chatLoop) Run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(l.out, "Ask about job openings and candidates. /reset starts over, /quit exits.")

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), analyst.MaxQuestionLength*4)

	for {
		fmt.Fprint(l.out, chatPrompt)
		if !scanner.Scan() {
			fmt.Fprintln(l.out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			l.reset(ctx)
			continue
		}

		ans, err := l.analyst.Ask(ctx, analyst.Request{
			UserID:    l.userID,
			SessionID: l.session,
			Question:  line,
		})
		if err != nil {
			fmt.Fprintf(l.out, "error: %s\n", describe(err))
			continue
		}
		l.session = ans.SessionID

		printAnswer(l.out, ans, l.verbose)
	}
}

func (l *chatLoop) reset(ctx context.Context) {
	if l.session != "" {
		if err := l.analyst.Reset(ctx, l.userID, l.session); err != nil && !errors.Is(err, errors.ErrNotFound) {
			fmt.Fprintf(l.out, "error: %s\n", describe(err))
			return
		}
	}
	l.session = ""
	fmt.Fprintln(l.out, "Started a new conversation.")
}

func describe(err error) string {
	var ve *errors.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return err.Error()
}
