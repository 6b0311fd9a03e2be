package support

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisNamespace = "anonedits"
	defaultRedisURL       = "redis://localhost:6379"
	redisClientName       = "anonedits"
	redisConnectTimeout   = 5 * time.Second
)

var (
	redisMu     sync.Mutex
	redisClient *redis.Client
)

// RedisSettings describe the shared Redis instance used for the repeat
// filter and the feed lease.
type RedisSettings struct {
	URL string
	// DB overrides the database selected in URL when it is not negative.
	DB        int
	Namespace string
}

// LoadRedisSettings reads REDIS_URL, REDIS_DB and REDIS_KEY_PREFIX.
func LoadRedisSettings() RedisSettings {
	return RedisSettings{
		URL:       GetEnv("REDIS_URL", ""),
		DB:        GetEnvInt("REDIS_DB", -1),
		Namespace: strings.Trim(GetEnv("REDIS_KEY_PREFIX", DefaultRedisNamespace), ":"),
	}
}

func (s RedisSettings) Configured() bool {
	return strings.TrimSpace(s.URL) != ""
}

func (s RedisSettings) Options() (*redis.Options, error) {
	url := s.URL
	if url == "" {
		url = defaultRedisURL
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if s.DB >= 0 {
		opt.DB = s.DB
	}
	opt.ClientName = redisClientName
	return opt, nil
}

// Key joins parts under the namespace, e.g. Key("feed", "leader") gives
// "anonedits:feed:leader".
func (s RedisSettings) Key(parts ...string) string {
	namespace := s.Namespace
	if namespace == "" {
		namespace = DefaultRedisNamespace
	}
	return namespace + ":" + strings.Join(parts, ":")
}

// RedisConfigured reports whether a shared Redis instance was configured.
func RedisConfigured() bool {
	return LoadRedisSettings().Configured()
}

func RedisKey(parts ...string) string {
	return LoadRedisSettings().Key(parts...)
}

func GetRedisClient() (*redis.Client, error) {
	redisMu.Lock()
	defer redisMu.Unlock()

	if redisClient != nil {
		return redisClient, nil
	}

	opt, err := LoadRedisSettings().Options()
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opt.Addr, err)
	}

	log.Debug("Connected to Redis", "addr", opt.Addr, "db", opt.DB)
	redisClient = client
	return redisClient, nil
}

func CloseRedisClient() error {
	redisMu.Lock()
	defer redisMu.Unlock()

	if redisClient == nil {
		return nil
	}

	err := redisClient.Close()
	redisClient = nil
	return err
}
