package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dukex/flowrun/pkg/models"
)

// RedisStore keeps bindings in Redis so any API replica can register a
// binding that any orchestrator replica observes. Keys:
//
//	<prefix>binding:<executionId>     => JSON binding, with TTL
//	<prefix>connection:<connectionId> => SET of execution ids, with TTL
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ BindingStore = (*RedisStore)(nil)

func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "flowrun:"
	}

	if ttl <= 0 {
		ttl = DefaultBindingTTL
	}

	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) keyBinding(executionID string) string {
	return s.prefix + "binding:" + executionID
}

func (s *RedisStore) keyConnection(connectionID string) string {
	return s.prefix + "connection:" + connectionID
}

func (s *RedisStore) Put(ctx context.Context, binding models.ConnectionBinding) error {
	if binding.CreatedAt.IsZero() {
		binding.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(binding)
	if err != nil {
		return fmt.Errorf("failed to encode binding: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.keyBinding(binding.ExecutionID), data, s.ttl)
	pipe.SAdd(ctx, s.keyConnection(binding.ConnectionID), binding.ExecutionID)
	pipe.Expire(ctx, s.keyConnection(binding.ConnectionID), s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store binding: %w", err)
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, executionID string) (*models.ConnectionBinding, error) {
	data, err := s.client.Get(ctx, s.keyBinding(executionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrBindingNotFound
		}

		return nil, err
	}

	var binding models.ConnectionBinding
	if err := json.Unmarshal(data, &binding); err != nil {
		return nil, fmt.Errorf("failed to decode binding: %w", err)
	}

	return &binding, nil
}

func (s *RedisStore) Delete(ctx context.Context, executionID string) error {
	binding, err := s.Get(ctx, executionID)
	if err != nil {
		if errors.Is(err, ErrBindingNotFound) {
			return nil
		}

		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.keyBinding(executionID))
	pipe.SRem(ctx, s.keyConnection(binding.ConnectionID), executionID)
	_, err = pipe.Exec(ctx)

	return err
}

func (s *RedisStore) DeleteByConnection(ctx context.Context, connectionID string) (int, error) {
	executionIDs, err := s.client.SMembers(ctx, s.keyConnection(connectionID)).Result()
	if err != nil {
		return 0, err
	}

	if len(executionIDs) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(executionIDs)+1)
	for _, executionID := range executionIDs {
		keys = append(keys, s.keyBinding(executionID))
	}

	removed, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, err
	}

	if err := s.client.Del(ctx, s.keyConnection(connectionID)).Err(); err != nil {
		return int(removed), err
	}

	return int(removed), nil
}
