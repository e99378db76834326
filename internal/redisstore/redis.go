package redisstore

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection settings with environment variable support.
type Config struct {
	Addr            string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password        string        `env:"REDIS_PASSWORD" envDefault:""`
	DB              int           `env:"REDIS_DB" envDefault:"0"`
	UseTLS          bool          `env:"REDIS_TLS" envDefault:"false"`
	TLSServerName   string        `env:"REDIS_TLS_SERVER_NAME" envDefault:""`
	DialTimeout     time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ConnectTimeout  time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"10s"`
	DisconnectStale bool          `env:"REDIS_DISCONNECT_STALE" envDefault:"true"`
}

// NewClient creates a Redis client from config and verifies connectivity
// with a ping bounded by the connect timeout.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{ServerName: cfg.TLSServerName, MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: connect: %w", err)
	}

	return client, nil
}

// Healthcheck returns a probe function suitable for the health endpoint.
func Healthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		return nil
	}
}

// ReplayCache remembers single-use identifiers (SAML assertion and request
// IDs) under a per-provider prefix with a TTL matching their validity.
type ReplayCache struct {
	client redis.UniversalClient
	prefix string
}

// NewReplayCache creates a replay cache with the given key prefix.
func NewReplayCache(client redis.UniversalClient, prefix string) *ReplayCache {
	return &ReplayCache{client: client, prefix: prefix}
}

// Remember records the id and reports whether it was seen for the first
// time. A second call with the same id within the TTL returns false.
func (c *ReplayCache) Remember(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.prefix+id, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: replay cache: %w", err)
	}
	return ok, nil
}
