package ratelimit

import (
	"context"
	"errors"
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

var ErrLockHeld = errors.New("lock_held")

// Locker hands out short-lived Redis leases. A nil *Locker grants every
// lease locally so callers need no Redis-specific branches.
type Locker struct {
	client *redis.Client
	script *redis.Script
}

// Lease is a held lock; Release is safe to call more than once.
type Lease struct {
	locker *Locker
	key    string
	token  string
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

func (l *Locker) Enabled() bool {
	return l != nil && l.client != nil
}

// Acquire returns ErrLockHeld when another holder owns key.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if !l.Enabled() {
		return &Lease{}, nil
	}
	if key == "" {
		return nil, errors.New("lock key is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lease{locker: l, key: key, token: token}, nil
}

func (lease *Lease) Release(ctx context.Context) error {
	if lease == nil || lease.locker == nil || lease.token == "" {
		return nil
	}
	err := lease.locker.script.Run(ctx, lease.locker.client, []string{lease.key}, lease.token).Err()
	lease.token = ""
	return err
}
