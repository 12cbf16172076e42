package main

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/cyberinferno/filecopy/initiator"
	"github.com/cyberinferno/filecopy/logger"
)

func clientCommand() *cli.Command {
	return &cli.Command{
		Name:      "client",
		Usage:     "Send files to a listener, or tell it to stop",
		ArgsUsage: "<addr> <port> [file...] [--stop]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "stop",
				Aliases: []string{"s"},
				Usage:   "Send the halt signal instead of files",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "Dial timeout (0 disables it)",
			},
		},
		Action: clientAction,
	}
}

// clientOptions is the validated command line of the client command.
type clientOptions struct {
	address string
	files   []string
	stop    bool
	timeout *time.Duration
}

func parseClientArgs(c *cli.Context) (clientOptions, error) {
	args, late, err := splitArgs(c)
	if err != nil {
		return clientOptions{}, err
	}
	if len(args) < 2 {
		return clientOptions{}, errors.New("client needs <addr> <port>")
	}

	port, err := parseNumber(args[1], "port")
	if err != nil {
		return clientOptions{}, err
	}

	opts := clientOptions{
		address: net.JoinHostPort(args[0], fmt.Sprint(port)),
		files:   args[2:],
	}

	if opts.stop, err = late.Bool(c, "stop"); err != nil {
		return clientOptions{}, err
	}
	switch {
	case opts.stop && len(opts.files) > 0:
		return clientOptions{}, errors.New("--stop takes no files")
	case !opts.stop && len(opts.files) == 0:
		return clientOptions{}, errors.New("no files to send (use --stop to halt the listener)")
	}

	if v, ok := late["timeout"]; ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return clientOptions{}, fmt.Errorf("--timeout: %w", err)
		}
		opts.timeout = &d
	} else if c.IsSet("timeout") {
		d := c.Duration("timeout")
		opts.timeout = &d
	}

	return opts, nil
}

func clientAction(c *cli.Context) error {
	opts, err := parseClientArgs(c)
	if err != nil {
		return inputError(err)
	}

	rt, err := setup(c, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	cfg := initiator.DefaultConfig(opts.address)
	cfg.ChunkSize = rt.config.Transfer.ChunkSize
	cfg.ConnectionTimeout = rt.config.Transfer.DialTimeout.Duration
	if opts.timeout != nil {
		cfg.ConnectionTimeout = *opts.timeout
	}

	i := initiator.New(cfg, rt.logger, rt.journal)
	if opts.stop {
		return i.SendHalt(c.Context)
	}

	start := time.Now()
	report, err := i.SendFiles(c.Context, opts.files)
	if report != nil {
		rt.logger.Info("batch finished",
			logger.Field{Key: "sent", Value: report.Sent()},
			logger.Field{Key: "negotiated", Value: len(report.Outcomes)},
			logger.Field{Key: "skipped", Value: len(report.Skipped)},
			logger.Field{Key: "elapsed", Value: time.Since(start)})
	}

	return err
}
