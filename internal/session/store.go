// Package session 维护活跃会话的消息列表、持久化缓存与向前翻页游标。
package session

import (
	"context"
	"fmt"

	"support-desk-go/internal/model"
)

// Key 根据 (chatID, orgID, userID) 三元组派生会话的持久化键。
// 单独以 chatID 作键的旧约定已废弃：组合键可避免跨组织/跨用户的键冲突。
func Key(chatID, orgID, userID string) string {
	return fmt.Sprintf("conversation:%s:%s:%s", chatID, orgID, userID)
}

// Store 定义会话状态的持久化后端。
// 实现必须满足：键不存在时 Load 返回 (nil, nil)；损坏的持久化数据同样按不存在处理
// （记录日志后返回 (nil, nil)），绝不向调用方传播解析错误。
type Store interface {
	Load(ctx context.Context, key string) (*model.ConversationRecord, error)
	Save(ctx context.Context, key string, rec *model.ConversationRecord) error
	Delete(ctx context.Context, keys ...string) error
	// KeysByPrefix 返回所有以 prefix 开头的键，用于按组合键前缀整体删除。
	KeysByPrefix(ctx context.Context, prefix string) ([]string, error)
}
