package localstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps device envelopes in Redis without expiry; a cart lives until
// the user clears it.
type RedisStorage struct {
	client *redis.Client
}

func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

func (r *RedisStorage) Get(ctx context.Context, deviceID string) ([]byte, error) {
	data, err := r.client.Get(ctx, storageKey(deviceID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r *RedisStorage) Set(ctx context.Context, deviceID string, envelope []byte) error {
	if err := r.client.Set(ctx, storageKey(deviceID), envelope, 0).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Delete(ctx context.Context, deviceID string) error {
	if err := r.client.Del(ctx, storageKey(deviceID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func storageKey(deviceID string) string {
	return fmt.Sprintf("%s:%s", StorageName, deviceID)
}
