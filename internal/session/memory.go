package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"support-desk-go/internal/model"
	"support-desk-go/pkg/log"
)

// ErrSaveFailed 由 MemoryStore 在注入写失败时返回，用于测试配额耗尽路径。
var ErrSaveFailed = errors.New("session: save failed")

// MemoryStore 是 Store 的内存实现，供测试与单机降级使用。
// 内部保存序列化后的 JSON 字节，与 Redis 实现走完全相同的编解码路径。
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
	// FailSaves 为 true 时所有 Save 返回 ErrSaveFailed。
	FailSaves bool
}

// NewMemoryStore 创建一个空的内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func (s *MemoryStore) Load(ctx context.Context, key string) (*model.ConversationRecord, error) {
	s.mu.RLock()
	raw, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var rec model.ConversationRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		log.Warnf("会话缓存数据损坏，按不存在处理: key=%s, err=%v", key, err)
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) Save(ctx context.Context, key string, rec *model.ConversationRecord) error {
	if s.FailSaves {
		return ErrSaveFailed
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[key] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) KeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// PutRaw 直接写入原始字节，供测试注入损坏数据。
func (s *MemoryStore) PutRaw(key string, raw []byte) {
	s.mu.Lock()
	s.entries[key] = raw
	s.mu.Unlock()
}
