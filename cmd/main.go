package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

func main() {
	opts := &Options{}
	parser := flags.NewParser(opts, flags.Default)
	parser.Name = "data-analyst"

	if _, err := parser.Parse(); err != nil {
		// go-flags prints usage and help itself
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
