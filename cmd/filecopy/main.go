// Package main provides the filecopy CLI entrypoint.
//
// Usage:
//
//	filecopy client <addr> <port> <file>... | --stop
//	filecopy server <port> [--count N | --keep] [--dir DIR]
//	filecopy journal [--side S [--round N]] [--key K] [--clear]
//
// Command flags may be written before or after the positional arguments.
//
// Exit codes:
//   - 0: success
//   - 1: invalid input, or the operation failed
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := newApp()
	app.ExitErrHandler = exitErrHandler

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "filecopy",
		Usage: "Copy files to a listening peer over TCP",
		Flags: globalFlags(),
		Commands: []*cli.Command{
			clientCommand(),
			serverCommand(),
			journalCommand(),
		},
	}
}

// exitErrHandler prints err and exits, keeping the code of a cli.ExitCoder.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
