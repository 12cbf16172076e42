// Package config loads the filecopy YAML configuration file. Every value is
// optional; command-line flags override what the file sets.
package config

import (
	"fmt"
	"time"

	"github.com/cyberinferno/filecopy/protocol"
)

// Journal backends.
const (
	JournalMemory = "memory"
	JournalRedis  = "redis"
	JournalNone   = "none"
)

// Config represents a filecopy.yaml file.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Transfer TransferConfig `yaml:"transfer"`
	Listener ListenerConfig `yaml:"listener"`
	Journal  JournalConfig  `yaml:"journal"`
}

// LogConfig selects the log level, output format and optional file directory.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

// TransferConfig tunes the payload buffer and the initiator's dial.
type TransferConfig struct {
	ChunkSize   int      `yaml:"chunk_size"`
	DialTimeout Duration `yaml:"dial_timeout"`
}

// ListenerConfig holds listener defaults.
type ListenerConfig struct {
	Dir string `yaml:"dir"`
}

// JournalConfig selects where transfer outcomes are recorded.
type JournalConfig struct {
	Backend   string   `yaml:"backend"`
	TTL       Duration `yaml:"ttl"`
	RedisAddr string   `yaml:"redis_addr"`
	RedisDB   int      `yaml:"redis_db"`
	Namespace string   `yaml:"namespace"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "24h").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string. An empty string leaves d unchanged.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Transfer: TransferConfig{
			ChunkSize:   protocol.ChunkSize,
			DialTimeout: Duration{10 * time.Second},
		},
		Listener: ListenerConfig{
			Dir: ".",
		},
		Journal: JournalConfig{
			Backend:   JournalMemory,
			TTL:       Duration{24 * time.Hour},
			Namespace: "filecopy",
		},
	}
}

// Validate reports the first invalid value.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}

	if c.Transfer.ChunkSize <= 0 {
		return fmt.Errorf("transfer.chunk_size must be positive, got %d", c.Transfer.ChunkSize)
	}
	if c.Transfer.DialTimeout.Duration < 0 {
		return fmt.Errorf("transfer.dial_timeout must not be negative")
	}

	switch c.Journal.Backend {
	case JournalMemory, JournalNone:
	case JournalRedis:
		if c.Journal.RedisAddr == "" {
			return fmt.Errorf("journal.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("journal.backend must be memory, redis or none, got %q", c.Journal.Backend)
	}

	return nil
}
