// Package scheduler implements the debounce trigger: for a burst of messages
// arriving within the quiet-period window of each other, exactly one flush
// fires, timed from the *last* message of the burst.
//
// Mechanics: every inbound message re-arms a per-conversation timer and bumps
// a generation token stored in Redis under "schedule:<id>". Arming supersedes
// (cancels) any previously scheduled flush; cancelling a timer that already
// fired or was consumed is a no-op. When a timer fires it re-reads the token:
// a mismatch means a later message re-armed the window (or an external flush
// consumed the buffer), so the stale timer does nothing. The token therefore
// enforces at-most-one in-flight flush per conversation even when a flush is
// also reachable through the HTTP trigger endpoint or another process.
//
// The fire path carries no payload: everything needed to process a flush is
// reloaded from the buffer and the conversation store by id alone.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/advdigital/go-lead-intake/internal/buffer"
)

// FlushFunc drains a conversation's buffer and processes the combined turn,
// returning the number of fragments processed.
type FlushFunc func(ctx context.Context, conversationID string) (int, error)

// Debouncer arms and re-arms delayed flushes.
type Debouncer struct {
	rdb    redis.UniversalClient
	window time.Duration
	ttl    time.Duration
	flush  FlushFunc
	log    zerolog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool

	// fireTimeout bounds the whole drain+process run of one flush.
	fireTimeout time.Duration
}

// New constructs a Debouncer. window is the quiet period; ttl bounds the
// lifetime of the schedule token and should exceed the window.
func New(rdb redis.UniversalClient, window, ttl time.Duration, flush FlushFunc, log zerolog.Logger) *Debouncer {
	return &Debouncer{
		rdb:         rdb,
		window:      window,
		ttl:         ttl,
		flush:       flush,
		log:         log,
		timers:      make(map[string]*time.Timer),
		fireTimeout: 2 * time.Minute,
	}
}

// Arm schedules (or re-schedules) a flush one window after now. The previous
// pending flush for the conversation, if any, is superseded.
func (d *Debouncer) Arm(ctx context.Context, conversationID string) error {
	key := buffer.ScheduleKey(conversationID)

	pipe := d.rdb.TxPipeline()
	gen := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, d.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	generation := gen.Val()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("scheduler stopped")
	}
	if prev, ok := d.timers[conversationID]; ok {
		// Supersede. Stop on an already-fired timer is a harmless no-op.
		prev.Stop()
	}
	d.timers[conversationID] = time.AfterFunc(d.window, func() {
		d.fire(conversationID, generation)
	})
	return nil
}

// fire runs in the timer goroutine, out-of-band from any request.
func (d *Debouncer) fire(conversationID string, generation int64) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	delete(d.timers, conversationID)
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), d.fireTimeout)
	defer cancel()

	// Confirm this firing still owns the window. redis.Nil means the token
	// was consumed (external flush or TTL expiry with an empty buffer).
	cur, err := d.rdb.Get(ctx, buffer.ScheduleKey(conversationID)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return
	case err != nil:
		// Store errors fall through to the flush attempt: if Redis is down
		// the drain fails too and fragments stay buffered, so proceeding
		// cannot double-process.
		d.log.Warn().Err(err).Str("conversation_id", conversationID).
			Msg("schedule token read failed; attempting flush")
	case cur != generation:
		return // superseded by a later message
	}

	n, err := d.flush(ctx, conversationID)
	if err != nil {
		d.log.Error().Err(err).Str("conversation_id", conversationID).
			Str("stage", "flush").Msg("debounced flush failed")
		return
	}
	d.log.Info().Str("conversation_id", conversationID).Int("fragments", n).
		Msg("debounced flush processed")
}

// Pending reports the number of conversations with an armed flush.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop cancels all pending flushes. Buffered fragments stay in Redis and are
// picked up by the next message or an external flush trigger.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
}
