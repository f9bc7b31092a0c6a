package credstore

import (
	"context"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "authclient:"

var _ BatchStore = (*RedisStore)(nil)

// RedisStore keeps credentials in Redis under a key prefix, so several clients
// can share one server. Batched writes use MULTI/EXEC.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

type RedisOption func(*RedisStore)

func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return autherrors.NewStorageError("set", key, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, autherrors.NewStorageError("get", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return autherrors.NewStorageError("remove", key, err)
	}
	return nil
}

// Clear removes every key under the store's prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return autherrors.NewStorageError("clear", "", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return autherrors.NewStorageError("clear", "", err)
	}
	return nil
}

func (s *RedisStore) SetMany(ctx context.Context, values map[string]string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, s.prefix+k, v, 0)
		}
		return nil
	})
	if err != nil {
		return autherrors.NewStorageError("set", "", err)
	}
	return nil
}

func (s *RedisStore) RemoveMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.prefix + k
	}
	if err := s.client.Del(ctx, prefixed...).Err(); err != nil {
		return autherrors.NewStorageError("remove", "", err)
	}
	return nil
}
