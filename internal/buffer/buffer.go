// Package buffer implements the per-conversation debounce buffer on Redis.
//
// Each conversation accumulates unsent text fragments in a Redis list keyed
// by "buffer:<conversation id>". Every write refreshes a TTL slightly longer
// than the debounce window so abandoned buffers (e.g. a flush trigger that
// never fired) self-clean instead of leaking.
//
// Append and Drain are the only operations on shared mutable state in the
// whole core, and both run inside MULTI/EXEC pipelines: concurrent webhook
// deliveries for the same conversation can never lose a fragment to a
// read-then-delete race.
package buffer

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	bufferKeyPrefix   = "buffer:"
	scheduleKeyPrefix = "schedule:"
)

// Store is the debounce buffer contract consumed by the intake and turn
// services. Implementations must be safe for concurrent use.
type Store interface {
	// Append adds a fragment to the conversation's pending sequence and
	// reports whether it is the first fragment since the last flush.
	Append(ctx context.Context, conversationID, fragment string) (first bool, err error)
	// Drain atomically reads and clears the pending fragments, returning
	// them in arrival order. Draining an empty buffer returns a nil slice.
	Drain(ctx context.Context, conversationID string) ([]string, error)
}

// Redis is the production Store backed by a go-redis client.
type Redis struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

// New returns a Redis-backed buffer whose keys expire after ttl.
func New(rdb redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

// BufferKey returns the Redis key holding a conversation's pending fragments.
func BufferKey(conversationID string) string { return bufferKeyPrefix + conversationID }

// ScheduleKey returns the Redis key holding a conversation's flush generation
// token (owned by the scheduler; deleted here on drain so a stale timer
// firing after an external flush is a no-op).
func ScheduleKey(conversationID string) string { return scheduleKeyPrefix + conversationID }

// Append pushes the fragment and refreshes the TTL in one transaction.
func (b *Redis) Append(ctx context.Context, conversationID, fragment string) (bool, error) {
	key := BufferKey(conversationID)
	pipe := b.rdb.TxPipeline()
	llen := pipe.RPush(ctx, key, fragment)
	pipe.Expire(ctx, key, b.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return llen.Val() == 1, nil
}

// Drain reads the whole list and deletes both the buffer and the schedule
// token inside MULTI/EXEC, so an Append racing with Drain lands either fully
// before (included in this flush) or fully after (starts the next buffer).
func (b *Redis) Drain(ctx context.Context, conversationID string) ([]string, error) {
	key := BufferKey(conversationID)
	pipe := b.rdb.TxPipeline()
	lr := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key, ScheduleKey(conversationID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	frags := lr.Val()
	if len(frags) == 0 {
		return nil, nil
	}
	return frags, nil
}
