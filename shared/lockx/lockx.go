package lockx

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNoClient = errors.New("lockx: redis client not initialized")

// unlockScript deletes the key only while it still carries the holder's token.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) ~= ARGV[1] then
	return 0
end
return redis.call("del", KEYS[1])
`)

// Lock is a single-holder Redis lease identified by a random token.
type Lock struct {
	client *redis.Client
	Key    string
	Token  string
	TTL    time.Duration
}

// Acquire tries once to take key for ttl. A lock held by someone else yields (nil, false, nil).
func Acquire(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*Lock, bool, error) {
	switch {
	case client == nil:
		return nil, false, ErrNoClient
	case ttl <= 0:
		return nil, false, errors.New("lockx: ttl must be > 0")
	}
	lock := &Lock{client: client, Key: key, Token: uuid.NewString(), TTL: ttl}
	ok, err := client.SetNX(ctx, key, lock.Token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return lock, true, nil
}

// Release is a no-op once the lease has expired and been taken by another holder.
func (l *Lock) Release(ctx context.Context) error {
	if l == nil || l.client == nil {
		return ErrNoClient
	}
	return unlockScript.Run(ctx, l.client, []string{l.Key}, l.Token).Err()
}

// Locker hands out per-entity writer locks under a common prefix.
type Locker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewLocker(client *redis.Client, prefix string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Locker{client: client, prefix: prefix, ttl: ttl}
}

func (l *Locker) TryLock(ctx context.Context, key string) (func(context.Context) error, bool, error) {
	lock, ok, err := Acquire(ctx, l.client, l.prefix+key, l.ttl)
	if !ok {
		return nil, false, err
	}
	return lock.Release, true, nil
}
