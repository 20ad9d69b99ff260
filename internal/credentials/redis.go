package credentials

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	fieldAccess  = "access"
	fieldRefresh = "refresh"
	fieldUserID  = "user_id"
)

// RedisStore keeps credentials in a redis hash so several client processes can share
// one login.
type RedisStore struct {
	rdb redis.UniversalClient
	key string
}

func NewRedisStore(rdb redis.UniversalClient, profile string) *RedisStore {
	return &RedisStore{rdb: rdb, key: "storefront:credentials:" + profile}
}

func (s *RedisStore) Load(ctx context.Context) (Credentials, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	return Credentials{
		AccessToken:  vals[fieldAccess],
		RefreshToken: vals[fieldRefresh],
		UserID:       vals[fieldUserID],
	}, nil
}

func (s *RedisStore) Save(ctx context.Context, c Credentials) error {
	err := s.rdb.HSet(ctx, s.key,
		fieldAccess, c.AccessToken,
		fieldRefresh, c.RefreshToken,
		fieldUserID, c.UserID,
	).Err()
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func (s *RedisStore) SetAccessToken(ctx context.Context, token string) error {
	if err := s.rdb.HSet(ctx, s.key, fieldAccess, token).Err(); err != nil {
		return fmt.Errorf("set access token: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
