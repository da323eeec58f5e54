package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nhalm/chiredact/redact"
	"github.com/redis/go-redis/v9"
)

// Redis is a shared rule source backed by a Redis list. Each list element is
// one JSON-encoded rule; list order is evaluation order. Use it when several
// instances must redact with the same rules.
type Redis struct {
	client *redis.Client
	prefix string
}

// RedisConfig holds configuration for the Redis connection.
// All fields should be populated explicitly by your application code from environment
// variables, config files, or other sources. Never reads environment variables directly.
type RedisConfig struct {
	// URL is the Redis server address (e.g., "localhost:6379")
	URL string

	// Password for Redis authentication (optional, leave empty if not needed)
	Password string

	// DB is the Redis database number (0-15, default: 0)
	DB int

	// Prefix is prepended to all keys (default: "redact:")
	Prefix string

	// DialTimeout is the timeout for establishing new connections (default: 5s)
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads (default: 3s)
	ReadTimeout time.Duration
}

// NewRedis creates a Redis rule source with the given configuration.
// Validates the connection with a ping before returning. Returns an error if
// the connection cannot be established within 5 seconds.
//
// Example:
//
//	src, err := rules.NewRedis(rules.RedisConfig{URL: "localhost:6379"})
//	if err != nil {
//		return err
//	}
//	defer src.Close()
//	list, err := src.Load(ctx, "api")
func NewRedis(config RedisConfig) (*Redis, error) {
	if config.Prefix == "" {
		config.Prefix = "redact:"
	}

	opts := &redis.Options{
		Addr:     config.URL,
		Password: config.Password,
		DB:       config.DB,
	}
	if config.DialTimeout > 0 {
		opts.DialTimeout = config.DialTimeout
	}
	if config.ReadTimeout > 0 {
		opts.ReadTimeout = config.ReadTimeout
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Redis{
		client: client,
		prefix: config.Prefix,
	}, nil
}

// Load reads the rule list stored under key and validates it.
// A missing key yields an empty list.
func (r *Redis) Load(ctx context.Context, key string) ([]redact.Rule, error) {
	raw, err := r.client.LRange(ctx, r.prefix+key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load rules failed: %w", err)
	}

	list := make([]redact.Rule, len(raw))
	for i, item := range raw {
		if err := json.Unmarshal([]byte(item), &list[i]); err != nil {
			return nil, fmt.Errorf("rule %d: decode: %w", i, err)
		}
	}

	if err := Validate(list); err != nil {
		return nil, err
	}
	return list, nil
}

// Save validates list and replaces the rules stored under key.
// The delete and push run in one MULTI/EXEC transaction so readers never
// observe a partial list.
func (r *Redis) Save(ctx context.Context, key string, list []redact.Rule) error {
	if err := Validate(list); err != nil {
		return err
	}

	items := make([]any, len(list))
	for i, rule := range list {
		b, err := json.Marshal(rule)
		if err != nil {
			return fmt.Errorf("rule %d: encode: %w", i, err)
		}
		items[i] = string(b)
	}

	fullKey := r.prefix + key
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, fullKey)
		if len(items) > 0 {
			pipe.RPush(ctx, fullKey, items...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save rules failed: %w", err)
	}
	return nil
}

// Close releases the Redis client connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
