package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"dataanalyst/internal/agents"
	"dataanalyst/internal/bootstrap"
	"dataanalyst/internal/services/analyst"
)

// Options is the root command. Struct tags are read by go-flags.
type Options struct {
	Ask   AskCmd   `command:"ask" description:"Ask a single question and print the answer"`
	Chat  ChatCmd  `command:"chat" description:"Interactive console session with the analyst"`
	Serve ServeCmd `command:"serve" description:"Start the HTTP API and the Telegram bot"`
}

// Analyst is what the console commands need from the analyst service
type Analyst interface {
	Ask(ctx context.Context, req analyst.Request) (*agents.Answer, error)
	Reset(ctx context.Context, userID, sessionID string) error
}

// withCore initializes the agent stack, runs fn and shuts everything down
func withCore(fn func(ctx context.Context, c *bootstrap.Container) error) error {
	c := bootstrap.NewContainer()
	c.MustInitCore()
	c.StartCore()
	defer c.Shutdown()

	return fn(c.Context, c)
}

// printAnswer writes the answer followed by a one-line summary
func printAnswer(w io.Writer, ans *agents.Answer, verbose bool) {
	fmt.Fprintln(w, strings.TrimSpace(ans.Text))

	if verbose {
		for i, call := range ans.ToolCalls {
			fmt.Fprintf(w, "  [%d] %s", i+1, call.Name)
			if call.Query != "" {
				fmt.Fprintf(w, ": %s", oneLine(call.Query))
			}
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintf(w, "-- %s, %s, %s tokens\n",
		english.Plural(len(ans.ToolCalls), "query", "queries"),
		ans.Duration.Round(10*time.Millisecond),
		humanize.Comma(int64(ans.TotalTokens())),
	)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
