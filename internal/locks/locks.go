package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const keyTokenUse = "coupon:use:%d"

// Locker provides best-effort cross-instance mutual exclusion for redemption
// of a single token. The database compare-and-swap remains the authoritative
// guard; the lock only spares losing replicas a doomed transaction.
type Locker struct {
	client *redis.Client
	script *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

// TryLockToken acquires the redemption lock for tokenID. It returns the
// fencing token needed to release it.
func (l *Locker) TryLockToken(ctx context.Context, tokenID int64, ttl time.Duration) (string, bool, error) {
	return l.tryLock(ctx, fmt.Sprintf(keyTokenUse, tokenID), ttl)
}

// ReleaseToken releases the redemption lock for tokenID.
func (l *Locker) ReleaseToken(ctx context.Context, tokenID int64, token string) error {
	return l.release(ctx, fmt.Sprintf(keyTokenUse, tokenID), token)
}

func (l *Locker) tryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if key == "" {
		return "", false, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *Locker) release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{key}, token).Err()
}
