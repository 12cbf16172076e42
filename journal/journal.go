// Package journal records per-file transfer outcomes so that operators can
// inspect what a listener received or an initiator sent. Entries expire
// after a configurable TTL. An in-memory backend (go-cache) and a Redis
// backend are provided.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/cyberinferno/filecopy/protocol"
)

// Side identifies which peer recorded an entry.
type Side string

const (
	SideInitiator Side = "initiator"
	SideListener  Side = "listener"
)

// Entry is the journal record of one file outcome.
type Entry struct {
	Side           Side            `msgpack:"side"`
	Round          uint32          `msgpack:"round"`
	Seq            int             `msgpack:"seq"`
	Peer           string          `msgpack:"peer"`
	Name           string          `msgpack:"name"`
	Size           uint64          `msgpack:"size"`
	Status         protocol.Status `msgpack:"status"`
	ElapsedMs      float64         `msgpack:"elapsed_ms"`
	BytesPerSecond float64         `msgpack:"bytes_per_sec"`
	RecordedAt     time.Time       `msgpack:"recorded_at"`
}

// Key returns the storage key of e. Keys of one round share the prefix
// returned by RoundPrefix and sort in file order.
func (e Entry) Key() string {
	return fmt.Sprintf("%s%04d:%s", RoundPrefix(e.Side, e.Round), e.Seq, e.Name)
}

// RoundPrefix returns the key prefix of every entry recorded by side for
// the given round.
func RoundPrefix(side Side, round uint32) string {
	return fmt.Sprintf("%s:%010d:", side, round)
}

// Journal stores transfer outcomes. Implementations are safe for concurrent use.
type Journal interface {
	// Record stores e under e.Key(), replacing any previous entry.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - e: The entry to store
	//
	// Returns:
	//   - An error if the backend rejects the write
	Record(ctx context.Context, e Entry) error

	// Get returns the entry stored under key.
	//
	// Returns:
	//   - The entry and true if found
	//   - An error if the backend fails
	Get(ctx context.Context, key string) (Entry, bool, error)

	// List returns every live entry whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]Entry, error)

	// Count returns the number of live entries.
	Count(ctx context.Context) (int, error)

	// DeleteByPrefix removes every entry whose key starts with prefix.
	//
	// Returns:
	//   - The number of entries deleted
	//   - An error if the backend fails
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error
}

// Discard is a Journal that keeps nothing.
type Discard struct{}

func (Discard) Record(context.Context, Entry) error { return nil }

func (Discard) Get(context.Context, string) (Entry, bool, error) { return Entry{}, false, nil }

func (Discard) List(context.Context, string) ([]Entry, error) { return nil, nil }

func (Discard) Count(context.Context) (int, error) { return 0, nil }

func (Discard) DeleteByPrefix(context.Context, string) (int, error) { return 0, nil }

func (Discard) Clear(context.Context) error { return nil }
