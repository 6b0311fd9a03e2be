package support

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLeaseTTL    = 30 * time.Second
	leaseRetryDelay    = time.Second
	leaseCallTimeout   = 5 * time.Second
	minRenewalInterval = time.Second
	renewalFraction    = 3
)

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

// RunWithLease holds a Redis lease on key while run executes, so that when
// several instances share one Redis only one of them consumes the edit feed.
// The context passed to run is cancelled if the lease is lost. When run
// returns nil or the lease is lost, the lease is released and re-acquired;
// a non-nil error from run is returned to the caller.
func RunWithLease(ctx context.Context, client *redis.Client, key string, ttl time.Duration, run func(context.Context) error) error {
	if run == nil {
		return errors.New("support: lease run function cannot be nil")
	}
	if client == nil {
		return errors.New("support: lease requires a redis client")
	}
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		lease, err := acquireLease(ctx, client, key, ttl)
		if err != nil {
			return err
		}

		log.Info("Feed lease acquired", "key", key, "holder", lease.holder)
		runErr := run(lease.ctx)
		lost := lease.ctx.Err() != nil && ctx.Err() == nil
		lease.Release()
		log.Debug("Feed lease released", "key", key)

		if runErr != nil && !lost {
			return runErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(leaseRetryDelay):
		}
	}
}

type lease struct {
	client    *redis.Client
	key       string
	holder    string
	ttl       time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	stopRenew chan struct{}
	closeOnce sync.Once
}

func acquireLease(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (*lease, error) {
	holder := newHolderID()

	for {
		ok, err := client.SetNX(ctx, key, holder, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("Feed lease: setnx failed", "key", key, "error", err)
		}

		if ok {
			leaseCtx, cancel := context.WithCancel(ctx)
			l := &lease{
				client:    client,
				key:       key,
				holder:    holder,
				ttl:       ttl,
				ctx:       leaseCtx,
				cancel:    cancel,
				stopRenew: make(chan struct{}),
			}
			go l.renewLoop()
			return l, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(leaseRetryDelay):
		}
	}
}

func (l *lease) Release() {
	l.closeOnce.Do(func() {
		close(l.stopRenew)
		l.cancel()
		if err := l.release(); err != nil {
			log.Warn("Feed lease: release failed", "key", l.key, "error", err)
		}
	})
}

func (l *lease) renewLoop() {
	interval := l.ttl / renewalFraction
	if interval < minRenewalInterval {
		interval = minRenewalInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopRenew:
			return
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			if err := l.renew(); err != nil {
				log.Warn("Feed lease lost", "key", l.key, "error", err)
				l.cancel()
				return
			}
		}
	}
}

func (l *lease) renew() error {
	ctx, cancel := context.WithTimeout(context.Background(), leaseCallTimeout)
	defer cancel()

	res, err := renewScript.Run(ctx, l.client, []string{l.key}, l.holder, l.ttl.Milliseconds()).Result()
	if err != nil {
		return err
	}
	if updated, ok := res.(int64); ok && updated == 0 {
		return errors.New("lease held by another instance")
	}
	return nil
}

func (l *lease) release() error {
	ctx, cancel := context.WithTimeout(context.Background(), leaseCallTimeout)
	defer cancel()

	_, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.holder).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func newHolderID() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%s", host, uuid.NewString())
}
