package support

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultRunLockTTL      = 10 * time.Minute
	renewalTimeout         = 5 * time.Second
	minRenewalInterval     = time.Second
	defaultRenewalFraction = 3
)

// ErrRunLockHeld is returned when another run currently owns the lock.
var ErrRunLockHeld = errors.New("run lock is held by another run")

var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)
)

// RunLock is a Redis lock that keeps two scheduled runs from probing and
// publishing at the same time. Its context is cancelled when the lock is lost.
type RunLock struct {
	client    redis.UniversalClient
	key       string
	value     string
	ttl       time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	stopRenew chan struct{}
	closeOnce sync.Once
}

// TryAcquireRunLock makes a single SETNX attempt. owner identifies this run in
// the lock value.
func TryAcquireRunLock(ctx context.Context, client redis.UniversalClient, key, owner string, ttl time.Duration) (*RunLock, error) {
	if client == nil {
		return nil, errors.New("support: run lock redis client is nil")
	}
	if ttl <= 0 {
		ttl = DefaultRunLockTTL
	}

	ok, err := client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("support: run lock setnx: %w", err)
	}
	if !ok {
		return nil, ErrRunLockHeld
	}

	lockCtx, cancel := context.WithCancel(ctx)
	lock := &RunLock{
		client:    client,
		key:       key,
		value:     owner,
		ttl:       ttl,
		ctx:       lockCtx,
		cancel:    cancel,
		stopRenew: make(chan struct{}),
	}
	go lock.renewLoop()

	log.Debug("run lock: acquired", "key", key)
	return lock, nil
}

func (rl *RunLock) Context() context.Context {
	return rl.ctx
}

func (rl *RunLock) Release() {
	rl.closeOnce.Do(func() {
		close(rl.stopRenew)
		rl.cancel()
		if err := rl.releaseLock(); err != nil {
			log.Warn("run lock: release failed", "key", rl.key, "error", err)
			return
		}
		log.Debug("run lock: released", "key", rl.key)
	})
}

func (rl *RunLock) renewLoop() {
	interval := rl.ttl / defaultRenewalFraction
	if interval < minRenewalInterval {
		interval = minRenewalInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopRenew:
			return
		case <-rl.ctx.Done():
			return
		case <-ticker.C:
			if err := rl.renewLock(); err != nil {
				log.Warn("run lock: renewal failed", "key", rl.key, "error", err)
				rl.cancel()
				return
			}
		}
	}
}

func (rl *RunLock) renewLock() error {
	ctx, cancel := context.WithTimeout(context.Background(), renewalTimeout)
	defer cancel()

	res, err := renewScript.Run(ctx, rl.client, []string{rl.key}, rl.value, rl.ttl.Milliseconds()).Result()
	if err != nil {
		return err
	}

	if updated, ok := res.(int64); ok && updated == 0 {
		return errors.New("lock lost")
	}

	return nil
}

func (rl *RunLock) releaseLock() error {
	ctx, cancel := context.WithTimeout(context.Background(), renewalTimeout)
	defer cancel()

	_, err := releaseScript.Run(ctx, rl.client, []string{rl.key}, rl.value).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
