// Copyright (c) 2025 duahaudo
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces sidebar keys in a shared Redis instance.
const redisKeyPrefix = "sidebar:"

// RedisKV stores keys in Redis, for setups where the relay daemon runs on
// a different host than the browser. Values are kept without TTL:
// conversation history only disappears on explicit delete.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV connects to the Redis instance at addr (host:port).
func NewRedisKV(addr string) *RedisKV {
	return &RedisKV{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// NewRedisKVWithClient wraps an existing client, used by tests.
func NewRedisKVWithClient(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, redisKeyPrefix+key, value, 0).Err()
}

func (r *RedisKV) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = redisKeyPrefix + k
	}
	return r.client.Del(ctx, prefixed...).Err()
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}

// Addr returns the configured server address, for status output.
func (r *RedisKV) Addr() string {
	return strings.TrimPrefix(r.client.Options().Addr, "redis://")
}
