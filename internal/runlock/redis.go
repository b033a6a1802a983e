package runlock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a crashed holder blocks other processes.
const DefaultTTL = 2 * time.Minute

const keyPrefix = "contentnotifier:lock:"

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Redis is a Locker shared by every process using the same Redis. The
// in-process lock is taken first so local contention never reaches Redis.
type Redis struct {
	client redis.Cmdable
	local  *Local
	ttl    time.Duration
}

// NewRedis creates a distributed locker.
func NewRedis(client redis.Cmdable, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, local: NewLocal(), ttl: ttl}
}

// TryLock implements Locker. The key is refreshed while held.
func (r *Redis) TryLock(ctx context.Context, name string) (func(), error) {
	releaseLocal, err := r.local.TryLock(ctx, name)
	if err != nil {
		return nil, err
	}

	key := keyPrefix + name
	owner := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, owner, r.ttl).Result()
	if err != nil {
		releaseLocal()
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		releaseLocal()
		return nil, ErrRunInProgress
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.refresh(key, owner, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()

			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, r.client, []string{key}, owner).Err(); err != nil {
				slog.Warn("failed to release redis lock", "key", key, "error", err)
			}
			releaseLocal()
		})
	}, nil
}

func (r *Redis) refresh(key, owner string, stop <-chan struct{}) {
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.ttl/3)
			n, err := refreshScript.Run(ctx, r.client, []string{key}, owner, r.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				slog.Warn("failed to refresh redis lock", "key", key, "error", err)
				continue
			}
			if n == 0 {
				slog.Error("redis lock lost while held", "key", key)
				return
			}
		}
	}
}
