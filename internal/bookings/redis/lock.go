package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"ms-booking/internal/logger"
)

var ErrLockTimeout = errors.New("timed out waiting for event lock")

// Deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// EventLock serialises admission attempts for one event across service
// instances. It narrows contention only; the database guard decides.
type EventLock struct {
	Client        *redis.Client
	Logger        *logger.Logger
	TTL           time.Duration
	RetryInterval time.Duration
	MaxWait       time.Duration
}

func NewEventLock(client *redis.Client, log *logger.Logger, ttl time.Duration) *EventLock {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &EventLock{
		Client:        client,
		Logger:        log,
		TTL:           ttl,
		RetryInterval: 25 * time.Millisecond,
		MaxWait:       ttl,
	}
}

func lockKey(eventID string) string {
	return "booking_lock:" + eventID
}

// TryAcquire makes a single SetNX attempt.
func (l *EventLock) TryAcquire(ctx context.Context, eventID string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.Client.SetNX(ctx, lockKey(eventID), token, l.TTL).Result()
	if err != nil {
		return "", false, fmt.Errorf("lock event %s: %w", eventID, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release is a no-op when the lock expired or was taken over.
func (l *EventLock) Release(ctx context.Context, eventID, token string) error {
	if err := releaseScript.Run(ctx, l.Client, []string{lockKey(eventID)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("unlock event %s: %w", eventID, err)
	}
	return nil
}

// Acquire retries until the lock is held, MaxWait passes or ctx ends.
func (l *EventLock) Acquire(ctx context.Context, eventID string) (func(), error) {
	deadline := time.Now().Add(l.MaxWait)

	for {
		token, ok, err := l.TryAcquire(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				if err := l.Release(context.Background(), eventID, token); err != nil {
					l.Logger.Warn("REDIS", err.Error())
				}
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.RetryInterval):
		}
	}
}
