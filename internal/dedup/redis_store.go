package dedup

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisKeyPrefix = "anonedits:lastchange:"
	redisOpTimeout        = 5 * time.Second
)

// RedisStore shares the last-signature slots between instances. GETSET keeps
// the read and the write in one round trip so concurrent writers cannot
// interleave between them.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore stores slots under prefix+key, DefaultRedisKeyPrefix when
// prefix is empty.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Swap(ctx context.Context, key, value string) (string, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	prev, err := s.client.GetSet(opCtx, s.prefix+key, value).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return prev, true, nil
}
