package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/cyberinferno/filecopy/config"
	"github.com/cyberinferno/filecopy/journal"
	"github.com/cyberinferno/filecopy/logger"
)

const (
	serviceName = "filecopy"

	journalCleanupInterval = 10 * time.Minute
	redisPingTimeout       = 5 * time.Second
)

// runtime holds what every command builds from the config and global flags.
type runtime struct {
	config  *config.Config
	logger  logger.Logger
	journal journal.Journal
	closers []io.Closer
}

// setup loads the config file (if any), applies the global flag overrides
// and builds the logger and the journal. Callers must Close the result.
func setup(c *cli.Context, logOut io.Writer) (*runtime, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, inputError(err)
	}

	rt := &runtime{config: cfg}

	rt.logger, err = buildLogger(cfg.Log, logOut)
	if err != nil {
		return nil, inputError(err)
	}
	rt.closers = append(rt.closers, rt.logger)

	rt.journal, err = rt.buildJournal(c.Context)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	return rt, nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String(ConfigFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet(LogLevelFlag.Name) {
		cfg.Log.Level = c.String(LogLevelFlag.Name)
	}
	if c.IsSet(LogFormatFlag.Name) {
		cfg.Log.Format = c.String(LogFormatFlag.Name)
	}

	return cfg, cfg.Validate()
}

// buildLogger picks the console or JSON writer for out. When a log
// directory is configured, JSON also goes to daily files there.
func buildLogger(cfg config.LogConfig, out io.Writer) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	switch {
	case cfg.Dir != "":
		return logger.NewZerologFileLogger(serviceName, cfg.Dir, level)
	case cfg.Format == "json":
		return logger.NewZerologLogger(zerolog.New(out), serviceName, level), nil
	default:
		return logger.NewConsoleLogger(out, serviceName, level), nil
	}
}

func (rt *runtime) buildJournal(ctx context.Context) (journal.Journal, error) {
	cfg := rt.config.Journal

	switch cfg.Backend {
	case config.JournalNone:
		return journal.Discard{}, nil
	case config.JournalRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("journal redis %s: %w", cfg.RedisAddr, err)
		}

		rt.closers = append(rt.closers, client)
		rt.logger.Debug("journal backend ready", logger.Field{Key: "backend", Value: cfg.Backend}, logger.Field{Key: "addr", Value: cfg.RedisAddr})
		return journal.NewRedisJournal(client, cfg.Namespace, cfg.TTL.Duration), nil
	default:
		return journal.NewMemoryJournal(cfg.TTL.Duration, journalCleanupInterval), nil
	}
}

// Close releases the journal client and the logger, last opened first.
func (rt *runtime) Close() error {
	var first error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// stderr is where commands log; tests replace it.
var stderr io.Writer = os.Stderr
