// Package redisstore keeps the portal's credential record in Redis, for portals running
// several replicas behind one address.
package redisstore

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/eduweave/eduweave/core"
	"github.com/eduweave/eduweave/core/session"
)

type Store struct {
	client *redis.Client
	prefix string
}

var _ session.CredentialStore = (*Store)(nil)

func New(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Open connects to the server configured in conf.
func Open(ctx context.Context, conf core.CredentialsConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.RedisAddress,
		Password: conf.RedisPassword,
		DB:       conf.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "connecting to redis at %s", conf.RedisAddress)
	}
	return New(client, conf.RedisPrefix), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) GetItem(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if err == redis.Nil {
		return "", session.ErrItemNotFound
	}
	if err != nil {
		return "", errors.Wrapf(err, "getting %s", key)
	}
	return value, nil
}

func (s *Store) SetItem(ctx context.Context, key, value string) error {
	return errors.Wrapf(s.client.Set(ctx, s.prefix+key, value, 0).Err(), "setting %s", key)
}

func (s *Store) RemoveItem(ctx context.Context, key string) error {
	return errors.Wrapf(s.client.Del(ctx, s.prefix+key).Err(), "removing %s", key)
}
