package config

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig locates the Redis server that holds session state, rate
// limit buckets and cached responses.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// loadRedis reads REDIS_ADDR, or REDIS_HOST and REDIS_PORT (which take
// precedence), REDIS_PASSWORD, REDIS_DB and REDIS_TLS.
func loadRedis(l *loader) RedisConfig {
	addr := l.str("REDIS_ADDR", "localhost:6379")
	if host, port := l.str("REDIS_HOST", ""), l.str("REDIS_PORT", ""); host != "" && port != "" {
		addr = host + ":" + port
	}
	return RedisConfig{
		Addr:     addr,
		Password: l.str("REDIS_PASSWORD", ""),
		DB:       l.integer("REDIS_DB", 0),
		TLS:      l.boolean("REDIS_TLS", false),
	}
}

// NewRedisClient connects and pings with a short timeout.  On failure the
// client is closed and the error returned; callers fall back to in-process
// state and run without rate limiting and caching.
func NewRedisClient(ctx context.Context, c RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB}
	if c.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", c.Addr, err)
	}
	return client, nil
}
