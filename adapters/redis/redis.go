// Package redis provides Redis implementations of storage ports.
// Each charge runs as a single Lua script, so the check and the
// increment are one atomic step on the server.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Config holds connection settings.
//
// Writes are acknowledged once Redis applies them. They survive a crash
// only when the server runs with appendonly yes and appendfsync always.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string

	DialTimeout       time.Duration
	ConnectionRetries int
	RetryBackoff      time.Duration
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.Prefix == "" {
		c.Prefix = "quotagate:"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ConnectionRetries <= 0 {
		c.ConnectionRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
}

// Dial connects to Redis, retrying with doubling backoff until the
// server answers PING or the retries run out.
func Dial(ctx context.Context, cfg Config, logger zerolog.Logger) (*goredis.Client, error) {
	cfg.setDefaults()

	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	backoff := cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= cfg.ConnectionRetries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		lastErr = client.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			if attempt > 0 {
				logger.Info().Str("addr", cfg.Addr).Int("attempt", attempt+1).Msg("redis connection established after retry")
			}
			return client, nil
		}

		logger.Debug().Err(lastErr).Str("addr", cfg.Addr).Int("attempt", attempt+1).Dur("backoff", backoff).Msg("redis connection failed, retrying")

		select {
		case <-ctx.Done():
			client.Close()
			return nil, fmt.Errorf("connect redis: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	client.Close()
	return nil, fmt.Errorf("connect redis after %d attempts: %w", cfg.ConnectionRetries+1, lastErr)
}

// keyspace builds key names under a common prefix.
type keyspace string

func (k keyspace) account(apiKey string) string { return string(k) + "account:" + apiKey }
func (k keyspace) index() string                { return string(k) + "accounts" }
func (k keyspace) events(apiKey string) string  { return string(k) + "events:" + apiKey }
