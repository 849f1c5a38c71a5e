package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the connection to a shared snippet store.
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	ListLen   int
}

// RedisStore persists snippets in redis: one JSON string per key plus a
// per-intent list trimmed to a fixed length, newest first.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	listLen int
}

func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address must not be empty")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "smithy"
	}
	listLen := cfg.ListLen
	if listLen <= 0 {
		listLen = defaultIntentListLen
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisStore{client: client, prefix: prefix, listLen: listLen}, nil
}

func (s *RedisStore) snippetKey(key string) string {
	return s.prefix + ":snippet:" + key
}

func (s *RedisStore) intentKey(intent string) string {
	return s.prefix + ":intent:" + intent
}

func (s *RedisStore) Put(ctx context.Context, sn Snippet) error {
	b, err := json.Marshal(sn)
	if err != nil {
		return fmt.Errorf("marshal snippet: %w", err)
	}
	if err := s.client.Set(ctx, s.snippetKey(sn.Key), b, 0).Err(); err != nil {
		return fmt.Errorf("store snippet: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.LPush(ctx, s.intentKey(sn.Intent), sn.Text)
	pipe.LTrim(ctx, s.intentKey(sn.Intent), 0, int64(s.listLen-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index snippet by intent: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Snippet, bool, error) {
	b, err := s.client.Get(ctx, s.snippetKey(key)).Bytes()
	if err == redis.Nil {
		return Snippet{}, false, nil
	}
	if err != nil {
		return Snippet{}, false, fmt.Errorf("fetch snippet: %w", err)
	}
	var sn Snippet
	if err := json.Unmarshal(b, &sn); err != nil {
		return Snippet{}, false, fmt.Errorf("parse snippet: %w", err)
	}
	return sn, true, nil
}

func (s *RedisStore) Recent(ctx context.Context, intent string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = s.listLen
	}
	texts, err := s.client.LRange(ctx, s.intentKey(intent), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list snippets for intent %s: %w", intent, err)
	}
	return texts, nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
