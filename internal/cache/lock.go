package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotHeld is returned when releasing a lock owned by someone else or already expired.
var ErrLockNotHeld = errors.New("lock not held by this owner")

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// Lock is a single-owner Redis lease. Each Lock value carries its own owner token.
type Lock struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

// NewLock builds a lease on name that expires after ttl unless released.
func NewLock(client *redis.Client, name string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		key:    "complaint-service:lock:" + name,
		owner:  uuid.NewString(),
		ttl:    ttl,
	}
}

// TryAcquire takes the lease without waiting.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Release drops the lease if this owner still holds it.
func (l *Lock) Release(ctx context.Context) error {
	res, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.owner).Int64()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if res == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Owner returns the token stored under the lock key while held.
func (l *Lock) Owner() string {
	return l.owner
}
