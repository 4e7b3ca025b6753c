package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"commerce-insights/internal/models"
	"github.com/redis/go-redis/v9"
)

// Connect builds a Redis client from a redis:// URL or a bare host:port.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisSelectionStore keeps the selection as JSON under one key, without expiry.
type RedisSelectionStore struct {
	client *redis.Client
	key    string
}

func NewRedisSelectionStore(client *redis.Client, key string) *RedisSelectionStore {
	return &RedisSelectionStore{client: client, key: key}
}

func (s *RedisSelectionStore) Load(ctx context.Context) (models.Filters, bool, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Filters{}, false, nil
		}
		return models.Filters{}, false, fmt.Errorf("load selection: %w", err)
	}

	var filters models.Filters
	if err := json.Unmarshal(raw, &filters); err != nil {
		return models.Filters{}, false, fmt.Errorf("decode selection: %w", err)
	}
	return filters, true, nil
}

func (s *RedisSelectionStore) Save(ctx context.Context, filters models.Filters) error {
	raw, err := json.Marshal(filters)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("save selection: %w", err)
	}
	return nil
}

func (s *RedisSelectionStore) Close() error {
	return s.client.Close()
}
