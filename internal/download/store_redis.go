package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sigedoc/pkg/platform/sentinel"
)

const tokenKeyPrefix = "dl:token:"

// RedisStore is the production token store: expiry is delegated to Redis TTL
// and single-use semantics come from an atomic GETDEL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an externally managed client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, token string, grant Grant, ttl time.Duration) error {
	payload, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("encode grant: %w", err)
	}
	if err := s.client.Set(ctx, tokenKeyPrefix+token, payload, ttl).Err(); err != nil {
		return fmt.Errorf("store grant: %w", err)
	}
	return nil
}

func (s *RedisStore) Take(ctx context.Context, token string) (Grant, error) {
	payload, err := s.client.GetDel(ctx, tokenKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return Grant{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Grant{}, fmt.Errorf("take grant: %w", err)
	}
	var grant Grant
	if err := json.Unmarshal([]byte(payload), &grant); err != nil {
		return Grant{}, fmt.Errorf("decode grant: %w", err)
	}
	return grant, nil
}
