// Package kvstore provides the durable key-value cache used for draft and
// override storage. Entries survive restarts and are keyed by string
// prefixes per subsystem (override_, reception_, safety_, materials_).
// This is part of the platform layer and contains no business logic.
package kvstore

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Store is the durable cache interface consumed by the workshop services.
type Store interface {
	// GetJSON loads the value stored under key into dest. It reports
	// whether a value was present.
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	// SetJSON stores value under key, overwriting any previous value.
	SetJSON(ctx context.Context, key string, value interface{}) error
	// Delete removes the value stored under key, if any.
	Delete(ctx context.Context, key string) error
	// Ping checks connectivity for readiness probes.
	Ping(ctx context.Context) error
}

// RedisStore is the Redis-backed Store implementation.
type RedisStore struct {
	client *redis.Client
}

// New wraps an existing Redis client. Tests pass a client pointed at
// miniredis.
func New(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// NewFromURL connects to Redis using a URL (redis:// or rediss://).
func NewFromURL(redisURL string, tlsInsecure bool) (*RedisStore, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	if opt.TLSConfig != nil && tlsInsecure {
		clone := opt.TLSConfig.Clone()
		clone.InsecureSkipVerify = true
		opt.TLSConfig = clone
	} else if opt.TLSConfig == nil && tlsInsecure {
		opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &RedisStore{client: redis.NewClient(opt)}, nil
}

// GetJSON implements Store.
func (s *RedisStore) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON implements Store.
func (s *RedisStore) SetJSON(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, 0).Err()
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Compile-time check that RedisStore implements Store
var _ Store = (*RedisStore)(nil)
