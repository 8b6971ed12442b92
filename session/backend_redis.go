package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "sentimenta"

// RedisBackend stores the credential blob under a single redis key.
type RedisBackend struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisBackend returns a backend storing the blob at "<prefix>:credential".
// A zero ttl keeps the key without expiry.
func NewRedisBackend(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisBackend {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisBackend{
		redis:  client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (b *RedisBackend) key() string {
	return b.prefix + ":credential"
}

// Load implements [Backend].
func (b *RedisBackend) Load(ctx context.Context) ([]byte, error) {
	blob, err := b.redis.Get(ctx, b.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return blob, nil
}

// Save implements [Backend]. SET replaces the whole value in one command.
func (b *RedisBackend) Save(ctx context.Context, blob []byte) error {
	if err := b.redis.Set(ctx, b.key(), blob, b.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Delete implements [Backend].
func (b *RedisBackend) Delete(ctx context.Context) error {
	if err := b.redis.Del(ctx, b.key()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
