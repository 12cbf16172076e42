package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/cyberinferno/filecopy/journal"
	"github.com/cyberinferno/filecopy/listener"
	"github.com/cyberinferno/filecopy/logger"
	"github.com/cyberinferno/filecopy/tcpserver"
)

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:      "server",
		Usage:     "Receive files into a directory",
		ArgsUsage: "<port> [--count N | --keep] [--dir DIR]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "count",
				Aliases: []string{"c"},
				Usage:   "Serve at most N connections (stops early on halt)",
			},
			&cli.BoolFlag{
				Name:    "keep",
				Aliases: []string{"k"},
				Usage:   "Serve connections until a client sends the halt signal",
			},
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "Destination directory (default from config, else the working directory)",
			},
		},
		Action: serverAction,
	}
}

// serverOptions is the validated command line of the server command.
type serverOptions struct {
	port   uint16
	policy tcpserver.Policy
	dir    string // empty when not given
}

func parseServerArgs(c *cli.Context) (serverOptions, error) {
	args, late, err := splitArgs(c)
	if err != nil {
		return serverOptions{}, err
	}
	if len(args) != 1 {
		return serverOptions{}, errors.New("server needs exactly one <port>")
	}

	var opts serverOptions
	if opts.port, err = parseNumber(args[0], "port"); err != nil {
		return serverOptions{}, err
	}

	keep, err := late.Bool(c, "keep")
	if err != nil {
		return serverOptions{}, err
	}
	count, hasCount := late.String(c, "count")
	if opts.policy, err = serverPolicy(keep, count, hasCount); err != nil {
		return serverOptions{}, err
	}

	opts.dir, _ = late.String(c, "dir")
	return opts, nil
}

// serverPolicy maps --count and --keep to an acceptance policy.
func serverPolicy(keep bool, count string, hasCount bool) (tcpserver.Policy, error) {
	switch {
	case hasCount && keep:
		return tcpserver.Policy{}, errors.New("--count and --keep are mutually exclusive")
	case hasCount:
		n, err := parseNumber(count, "count")
		if err != nil {
			return tcpserver.Policy{}, err
		}
		return tcpserver.Count(n), nil
	case keep:
		return tcpserver.Forever(), nil
	default:
		return tcpserver.Once(), nil
	}
}

func serverAction(c *cli.Context) error {
	opts, err := parseServerArgs(c)
	if err != nil {
		return inputError(err)
	}

	rt, err := setup(c, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	dir := rt.config.Listener.Dir
	if opts.dir != "" {
		dir = opts.dir
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return inputError(fmt.Errorf("destination %q is not a directory", dir))
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := listener.New(dir, rt.config.Transfer.ChunkSize, rt.logger, rt.journal)
	s := &tcpserver.TCPServer{
		Logger: rt.logger,
		Name:   serviceName,
		Addr:   net.JoinHostPort("", fmt.Sprint(opts.port)),
		Policy: opts.policy,
		NewSession: func(id uint32, conn net.Conn) tcpserver.TCPServerSession {
			return l.NewSession(ctx, id, conn)
		},
	}

	if err := s.Start(); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	err = s.Serve()
	summarizeRounds(context.WithoutCancel(ctx), rt, s.Rounds())
	return err
}

// summarizeRounds logs per-status totals of the rounds this run served,
// read back from the journal.
func summarizeRounds(ctx context.Context, rt *runtime, rounds uint32) {
	totals := make(map[string]int)
	for round := uint32(1); round <= rounds; round++ {
		entries, err := rt.journal.List(ctx, journal.RoundPrefix(journal.SideListener, round))
		if err != nil {
			rt.logger.Warn("cannot read journal", logger.Field{Key: "error", Value: err})
			return
		}

		for _, e := range entries {
			totals[e.Status.String()]++
		}
	}

	fields := []logger.Field{{Key: "rounds", Value: rounds}}
	for status, n := range totals {
		fields = append(fields, logger.Field{Key: status, Value: n})
	}
	rt.logger.Info("transfer summary", fields...)

	if n, err := rt.journal.Count(ctx); err == nil {
		rt.logger.Debug("journal entries", logger.Field{Key: "count", Value: n})
	}
}
