package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "transcription-api:lock:"

// RedsyncLocker holds a Redis mutex per key so API replicas agree on who may change a record.
type RedsyncLocker struct {
	rs  *redsync.Redsync
	ttl time.Duration
	log zerolog.Logger
}

func NewRedsyncLocker(client *redis.Client, ttl time.Duration, log zerolog.Logger) *RedsyncLocker {
	return &RedsyncLocker{
		rs:  redsync.New(goredis.NewPool(client)),
		ttl: ttl,
		log: log.With().Str("component", "redsync-locker").Logger(),
	}
}

// Acquire retries until the mutex is taken, the retry budget runs out or ctx is done.
func (l *RedsyncLocker) Acquire(ctx context.Context, key string) (func(), error) {
	mutex := l.rs.NewMutex(keyPrefix+key,
		redsync.WithExpiry(l.ttl),
		redsync.WithTries(64),
		redsync.WithRetryDelay(100*time.Millisecond),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}

	return func() {
		// Unlock must run even when the request context is already cancelled.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := mutex.UnlockContext(unlockCtx); err != nil {
			l.log.Error().Err(err).Str("key", key).Msg("failed to unlock mutex")
		}
	}, nil
}
