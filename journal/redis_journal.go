package journal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// RedisJournal stores msgpack-encoded entries in Redis under a namespace so
// that several listeners can share one Redis database.
type RedisJournal struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisJournal creates a Redis-backed journal.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	j := NewRedisJournal(client, "filecopy", 24*time.Hour)
//
// Parameters:
//   - client: Connected Redis client; the journal does not close it
//   - namespace: Key namespace, "filecopy" when empty
//   - ttl: Lifetime of each entry; 0 keeps entries forever
//
// Returns:
//   - A new RedisJournal
func NewRedisJournal(client *redis.Client, namespace string, ttl time.Duration) *RedisJournal {
	if namespace == "" {
		namespace = "filecopy"
	}

	return &RedisJournal{
		client:    client,
		namespace: namespace,
		ttl:       ttl,
	}
}

func (j *RedisJournal) redisKey(key string) string {
	return j.namespace + ":" + key
}

// Record implements Journal.
func (j *RedisJournal) Record(ctx context.Context, e Entry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now()
	}

	data, err := msgpack.Marshal(&e)
	if err != nil {
		return fmt.Errorf("failed to encode journal entry: %w", err)
	}

	if err := j.client.Set(ctx, j.redisKey(e.Key()), data, j.ttl).Err(); err != nil {
		return fmt.Errorf("failed to record journal entry: %w", err)
	}

	return nil
}

// Get implements Journal.
func (j *RedisJournal) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := j.client.Get(ctx, j.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get error: %w", err)
	}

	var e Entry
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("failed to decode journal entry: %w", err)
	}

	return e, true, nil
}

// scanKeys returns the full Redis keys under the namespace that start with prefix.
func (j *RedisJournal) scanKeys(ctx context.Context, prefix string) ([]string, error) {
	full := j.redisKey(prefix)
	iter := j.client.Scan(ctx, 0, escapeGlob(full)+"*", 0).Iterator()

	var keys []string
	for iter.Next(ctx) {
		if key := iter.Val(); strings.HasPrefix(key, full) {
			keys = append(keys, key)
		}
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}

	return keys, nil
}

// List implements Journal.
func (j *RedisJournal) List(ctx context.Context, prefix string) ([]Entry, error) {
	keys, err := j.scanKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	sort.Strings(keys)
	values, err := j.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget error: %w", err)
	}

	entries := make([]Entry, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}

		var e Entry
		if err := msgpack.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("failed to decode journal entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// Count implements Journal.
func (j *RedisJournal) Count(ctx context.Context) (int, error) {
	keys, err := j.scanKeys(ctx, "")
	if err != nil {
		return 0, err
	}

	return len(keys), nil
}

// DeleteByPrefix implements Journal.
func (j *RedisJournal) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := j.scanKeys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := j.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to delete keys: %w", err)
	}

	return int(deleted), nil
}

// Clear implements Journal. Only keys under the journal's namespace are removed.
func (j *RedisJournal) Clear(ctx context.Context) error {
	_, err := j.DeleteByPrefix(ctx, "")
	return err
}

// escapeGlob escapes the Redis MATCH metacharacters in s.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}

	return b.String()
}
