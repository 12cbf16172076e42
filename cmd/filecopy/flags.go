package main

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"
)

const (
	exitInvalidInput = 1
)

// Global flags, shared by every command.
var (
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to a filecopy YAML config file",
		EnvVars: []string{"FILECOPY_CONFIG"},
	}

	LogLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn, error",
	}

	LogFormatFlag = &cli.StringFlag{
		Name:  "log-format",
		Usage: "Log format: console, json",
	}
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		LogLevelFlag,
		LogFormatFlag,
	}
}

// parseNumber parses a port or a round count. Both must fit a uint16.
func parseNumber(value, what string) (uint16, error) {
	n, err := strconv.ParseUint(value, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("'%s' is an invalid %s number - %w", value, what, err)
	}

	return uint16(n), nil
}

// inputError wraps err so that the process exits with exitInvalidInput.
func inputError(err error) error {
	return cli.Exit(err.Error(), exitInvalidInput)
}
