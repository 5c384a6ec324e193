package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by go-redis, the production-shaped alternative
// to Memory for deployments that need the stored blobs (the encrypted
// state snapshot) to survive a process restart.
type Redis struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedis dials addr (host:port) and returns a Redis-backed Store.
func NewRedis(addr string, db int) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		ctx:    context.Background(),
	}
}

// Get implements Store.
func (r *Redis) Get(key string) ([]byte, error) {
	v, err := r.client.Get(r.ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: redis get: %w", err)
	}
	return v, nil
}

// Put implements Store.
func (r *Redis) Put(key string, value []byte) error {
	if err := r.client.Set(r.ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("store: redis set: %w", err)
	}
	return nil
}

// Delete implements Store.
func (r *Redis) Delete(key string) error {
	if err := r.client.Del(r.ctx, key).Err(); err != nil {
		return fmt.Errorf("store: redis del: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
