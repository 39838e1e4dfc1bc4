package main

import (
	"os"

	"github.com/teranos/pulse/cmd/pulse/commands"
	"github.com/teranos/pulse/errors"
	"github.com/teranos/pulse/logger"
)

func main() {
	err := commands.NewRootCmd().Execute()
	logger.Cleanup()
	if err != nil {
		commands.PrintError(os.Stderr, err)
		os.Exit(errors.ExitCode(err))
	}
}
