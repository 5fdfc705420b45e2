package chain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes submissions signed by one key, from nonce fetch to send.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// MutexLocker is a ctx-aware in-process lock.
type MutexLocker struct {
	ch chan struct{}
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{ch: make(chan struct{}, 1)}
}

func (m *MutexLocker) Lock(ctx context.Context) (func(), error) {
	select {
	case m.ch <- struct{}{}:
		return func() { <-m.ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// compare-and-delete so an expired holder never frees a newer holder's lock
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker shares the signer lock between oracle processes using one key.
type RedisLocker struct {
	rdb   *redis.Client
	key   string
	ttl   time.Duration
	poll  time.Duration
	local *MutexLocker
}

func NewRedisLocker(rdb *redis.Client, sender common.Address, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		rdb:   rdb,
		key:   "oracle:signer:" + sender.Hex(),
		ttl:   ttl,
		poll:  50 * time.Millisecond,
		local: NewMutexLocker(),
	}
}

func (l *RedisLocker) Lock(ctx context.Context) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx)
	if err != nil {
		return nil, err
	}
	token := uuid.NewString()

	t := time.NewTicker(l.poll)
	defer t.Stop()
	for {
		ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			unlockLocal()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("redis lock %s: %w", l.key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			unlockLocal()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	return func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{l.key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			log.Printf("[chain] redis unlock failed, lock expires in %s: key=%s err=%v", l.ttl, l.key, err)
		}
		unlockLocal()
	}, nil
}
