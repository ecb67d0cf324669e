package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"support-desk-go/internal/model"
	"support-desk-go/pkg/log"
)

// redisStore 是 Store 的 Redis 实现。会话属于短生命周期状态，写入带 TTL。
type redisStore struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewRedisStore 创建一个基于 Redis 的会话存储。
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &redisStore{redisClient: redisClient, ttl: ttl}
}

func (s *redisStore) Load(ctx context.Context, key string) (*model.ConversationRecord, error) {
	jsonData, err := s.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation record: %w", err)
	}
	var rec model.ConversationRecord
	if err := json.Unmarshal([]byte(jsonData), &rec); err != nil {
		// 损坏数据按不存在处理，失败开放到空会话
		log.Warnf("会话缓存数据损坏，按不存在处理: key=%s, err=%v", key, err)
		return nil, nil
	}
	return &rec, nil
}

func (s *redisStore) Save(ctx context.Context, key string, rec *model.ConversationRecord) error {
	jsonData, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation record: %w", err)
	}
	if err := s.redisClient.Set(ctx, key, jsonData, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set conversation record: %w", err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.redisClient.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation records: %w", err)
	}
	return nil
}

func (s *redisStore) KeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.redisClient.Keys(ctx, prefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan conversation keys: %w", err)
	}
	return keys, nil
}
