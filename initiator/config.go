package initiator

import (
	"time"

	"github.com/cyberinferno/filecopy/protocol"
)

// Config holds the settings of an Initiator.
type Config struct {
	// Address is the "host:port" of the listener.
	Address string
	// ConnectionTimeout bounds the dial only; 0 means no timeout. Protocol
	// reads and writes never time out.
	ConnectionTimeout time.Duration
	// ChunkSize is the payload buffer size; protocol.ChunkSize when 0.
	ChunkSize int
}

// DefaultConfig returns a Config for address with a 10s dial timeout and
// the default chunk size.
func DefaultConfig(address string) Config {
	return Config{
		Address:           address,
		ConnectionTimeout: 10 * time.Second,
		ChunkSize:         protocol.ChunkSize,
	}
}
