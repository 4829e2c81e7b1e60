package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// compare-and-delete so a release never removes a lock that expired and was
// re-taken by another holder
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// SweepLock serializes the reaper and retry sweep across scheduler
// instances with a Redis advisory lock. The two sweeps share one key, so
// they never run concurrently with each other; a holder that dies is
// covered by the TTL.
type SweepLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewSweepLock(client *redis.Client, key string, ttl time.Duration) *SweepLock {
	if key == "" {
		key = "docqueue:sweep_lock"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SweepLock{client: client, key: key, ttl: ttl}
}

// Acquire attempts to take the lock. On success it returns a release
// function; acquired is false when another holder owns the lock, in which
// case the caller skips this sweep cycle.
func (l *SweepLock) Acquire(ctx context.Context) (release func(), acquired bool, err error) {
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		releaseScript.Run(context.Background(), l.client, []string{l.key}, token)
	}
	return release, true, nil
}
