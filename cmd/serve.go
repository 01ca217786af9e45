package main

import (
	"os"
	"os/signal"
	"syscall"

	"dataanalyst/internal/bootstrap"
)

// ServeCmd runs the HTTP API, the Telegram bot (when a token is set) and the
// tool call consumer until SIGINT or SIGTERM.
type ServeCmd struct{}

func (s *ServeCmd) Execute(_ []string) error {
	c := bootstrap.NewContainer()
	c.MustInit()

	if err := c.Start(); err != nil {
		c.Shutdown()
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		c.Log.Infof("Received %s", sig)
	case <-c.Context.Done():
		c.Log.Warn("Application context cancelled")
	}

	c.Shutdown()
	return nil
}
