package journal

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryJournal keeps entries in process memory using go-cache. Entries
// vanish when the process exits.
type MemoryJournal struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewMemoryJournal creates an in-memory journal.
//
// Parameters:
//   - ttl: Lifetime of each entry (use cache.NoExpiration to keep entries forever)
//   - cleanupInterval: Interval at which expired entries are purged
//
// Returns:
//   - A new MemoryJournal
func NewMemoryJournal(ttl, cleanupInterval time.Duration) *MemoryJournal {
	return &MemoryJournal{
		cache: cache.New(ttl, cleanupInterval),
		ttl:   ttl,
	}
}

// Record implements Journal.
func (j *MemoryJournal) Record(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}

	j.cache.Set(e.Key(), e, j.ttl)
	return nil
}

// Get implements Journal.
func (j *MemoryJournal) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}

	v, found := j.cache.Get(key)
	if !found {
		return Entry{}, false, nil
	}

	e, ok := v.(Entry)
	return e, ok, nil
}

// List implements Journal.
func (j *MemoryJournal) List(ctx context.Context, prefix string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	items := j.cache.Items()
	for key := range items {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		if e, ok := items[key].Object.(Entry); ok {
			entries = append(entries, e)
		}
	}

	return entries, nil
}

// Count implements Journal.
func (j *MemoryJournal) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return j.cache.ItemCount(), nil
}

// DeleteByPrefix implements Journal.
func (j *MemoryJournal) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	deleted := 0
	for key := range j.cache.Items() {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		if strings.HasPrefix(key, prefix) {
			j.cache.Delete(key)
			deleted++
		}
	}

	return deleted, nil
}

// Clear implements Journal.
func (j *MemoryJournal) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j.cache.Flush()
	return nil
}
