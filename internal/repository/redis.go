package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Ryuzii/FerraEura/internal/session"
	"github.com/redis/go-redis/v9"
)

// RedisStateStore keeps one hash field per guild under a single key, so a
// save replaces the whole map atomically.
type RedisStateStore struct {
	client *redis.Client
	key    string
}

func NewRedisStateStore(client *redis.Client, key string) *RedisStateStore {
	if key == "" {
		key = "ferraeura:sessions"
	}
	return &RedisStateStore{client: client, key: key}
}

var _ StateStore = (*RedisStateStore)(nil)

func (s *RedisStateStore) Save(ctx context.Context, states map[string]session.State) error {
	fields := make(map[string]any, len(states))
	for guildID, st := range states {
		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("failed to encode state for guild %s: %w", guildID, err)
		}
		fields[guildID] = data
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(fields) > 0 {
			pipe.HSet(ctx, s.key, fields)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session states: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Load(ctx context.Context) (map[string]session.State, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to load session states: %w", err)
	}

	states := make(map[string]session.State, len(fields))
	for guildID, raw := range fields {
		var st session.State
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			return nil, fmt.Errorf("failed to decode state for guild %s: %w", guildID, err)
		}
		states[guildID] = st
	}
	return states, nil
}
