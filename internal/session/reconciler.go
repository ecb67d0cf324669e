package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"support-desk-go/internal/model"
	"support-desk-go/pkg/log"
)

const previewLen = 20

// Update 是会话更新通知，推送给侧边栏/历史视图以避免整页刷新。
type Update struct {
	ChatID    string `json:"chatId"`
	OrgID     string `json:"orgId"`
	UserID    string `json:"userId"`
	Preview   string `json:"preview"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Reconciler 拥有单个活跃会话消息列表的权威视图：
// 合并本地追加与流式增量，负责会话 ID 迁移与持久化，并向订阅者广播更新。
// 每个活跃视图各持有一个实例，存储后端通过 Store 接口注入。
type Reconciler struct {
	store Store

	mu        sync.Mutex
	listeners []func(Update)

	// now 可替换以便测试时钟回拨保护
	now func() time.Time
}

// NewReconciler 创建一个 Reconciler。
func NewReconciler(store Store) *Reconciler {
	return &Reconciler{
		store: store,
		now:   time.Now,
	}
}

// Subscribe 注册一个会话更新监听器。监听器在每次 Commit 后被同步调用。
func (r *Reconciler) Subscribe(fn func(Update)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Load 按组合键加载会话；缓存不存在或数据损坏时返回空会话壳
// （HasMore=true, CursorPage=1），绝不向调用方抛错。
func (r *Reconciler) Load(ctx context.Context, chatID, orgID, userID string) *model.Conversation {
	conv := &model.Conversation{
		ChatID:     chatID,
		OrgID:      orgID,
		UserID:     userID,
		HasMore:    true,
		CursorPage: 1,
	}
	if chatID == "" {
		return conv
	}

	rec, err := r.store.Load(ctx, Key(chatID, orgID, userID))
	if err != nil {
		log.Warnf("加载会话缓存失败，回退到空会话: chatId=%s, err=%v", chatID, err)
		return conv
	}
	if rec == nil {
		return conv
	}

	conv.HasMore = rec.HasMore
	if rec.CursorPage > 0 {
		conv.CursorPage = rec.CursorPage
	}
	conv.Messages = make([]*model.Message, 0, len(rec.Messages))
	for i := range rec.Messages {
		m := rec.Messages[i]
		conv.Messages = append(conv.Messages, &m)
	}
	return conv
}

// AppendLocal 在尾部追加一条客户消息。
// 时间戳相对尾部消息单调不减：墙钟未前进时强制 +1ms，避免排序抖动。
func (r *Reconciler) AppendLocal(conv *model.Conversation, text string) *model.Message {
	ts := r.now().UnixMilli()
	if tail := conv.Tail(); tail != nil && ts <= tail.Timestamp {
		ts = tail.Timestamp + 1
	}
	msg := &model.Message{
		ID:         uuid.NewString(),
		SenderType: model.SenderCustomer,
		Text:       text,
		Timestamp:  ts,
	}
	conv.Messages = append(conv.Messages, msg)
	return msg
}

// BeginReply 追加一条空文本的 system 占位消息并返回其可变句柄，
// 流式增量到达后原地填充。
func (r *Reconciler) BeginReply(conv *model.Conversation) *model.Message {
	ts := r.now().UnixMilli()
	if tail := conv.Tail(); tail != nil && ts <= tail.Timestamp {
		ts = tail.Timestamp + 1
	}
	msg := &model.Message{
		ID:         uuid.NewString(),
		SenderType: model.SenderSystem,
		Text:       "",
		Timestamp:  ts,
	}
	conv.Messages = append(conv.Messages, msg)
	return msg
}

// ApplyDelta 将一个流式增量并入回复句柄。
// 当后端在帧中分配了与当前（临时）ID 不同的会话 ID 时触发迁移：
// 旧键下的持久化条目拷贝到新键并删除旧键，之后一律使用新键。迁移幂等。
func (r *Reconciler) ApplyDelta(ctx context.Context, conv *model.Conversation, handle *model.Message, delta *model.StreamDelta) {
	if delta == nil {
		return
	}
	if delta.ChatID != "" && delta.ChatID != conv.ChatID {
		r.migrate(ctx, conv, delta.ChatID)
	}
	handle.Text += delta.Content
}

// migrate 将会话从当前键迁移到新分配的会话 ID 下。
func (r *Reconciler) migrate(ctx context.Context, conv *model.Conversation, newChatID string) {
	oldChatID := conv.ChatID
	conv.ChatID = newChatID
	if oldChatID == "" {
		return
	}

	oldKey := Key(oldChatID, conv.OrgID, conv.UserID)
	newKey := Key(newChatID, conv.OrgID, conv.UserID)

	rec, err := r.store.Load(ctx, oldKey)
	if err != nil {
		log.Warnf("迁移会话时读取旧键失败: old=%s, err=%v", oldKey, err)
	}
	if rec != nil {
		rec.ChatID = newChatID
		if err := r.store.Save(ctx, newKey, rec); err != nil {
			log.Warnf("迁移会话时写入新键失败: new=%s, err=%v", newKey, err)
			return
		}
	}
	if err := r.store.Delete(ctx, oldKey); err != nil {
		log.Warnf("迁移会话时删除旧键失败: old=%s, err=%v", oldKey, err)
	}
	log.Infof("会话 ID 迁移完成: %s -> %s", oldChatID, newChatID)
}

// DiscardEmptyReply 移除一条从未收到任何内容的占位回复。
// 流被中止但已有部分内容时不调用此方法：部分回答保留，不回滚。
func (r *Reconciler) DiscardEmptyReply(conv *model.Conversation, handle *model.Message) {
	if handle == nil || handle.Text != "" {
		return
	}
	for i, m := range conv.Messages {
		if m == handle {
			conv.Messages = append(conv.Messages[:i], conv.Messages[i+1:]...)
			return
		}
	}
}

// Commit 将完整消息列表与游标元数据持久化到组合键下，并广播更新通知。
// 持久化是尽力而为：写失败（例如配额耗尽）只记告警，内存状态在本次会话内仍然权威。
func (r *Reconciler) Commit(ctx context.Context, conv *model.Conversation) {
	now := r.now().UnixMilli()
	rec := &model.ConversationRecord{
		ChatID:     conv.ChatID,
		Messages:   make([]model.Message, 0, len(conv.Messages)),
		HasMore:    conv.HasMore,
		CursorPage: conv.CursorPage,
		UpdatedAt:  now,
	}
	for _, m := range conv.Messages {
		rec.Messages = append(rec.Messages, *m)
	}

	if err := r.store.Save(ctx, Key(conv.ChatID, conv.OrgID, conv.UserID), rec); err != nil {
		log.Warnf("会话持久化失败（内存状态仍有效）: chatId=%s, err=%v", conv.ChatID, err)
	}

	r.notify(Update{
		ChatID:    conv.ChatID,
		OrgID:     conv.OrgID,
		UserID:    conv.UserID,
		Preview:   preview(conv),
		UpdatedAt: now,
	})
}

// Delete 删除组合键前缀下的全部持久化条目。幂等。
func (r *Reconciler) Delete(ctx context.Context, chatID, orgID, userID string) error {
	keys, err := r.store.KeysByPrefix(ctx, Key(chatID, orgID, userID))
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.store.Delete(ctx, keys...)
}

func (r *Reconciler) notify(u Update) {
	r.mu.Lock()
	listeners := make([]func(Update), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(u)
	}
}

// preview 取首条消息的前若干字符作为侧边栏预览。
func preview(conv *model.Conversation) string {
	if len(conv.Messages) == 0 {
		return ""
	}
	runes := []rune(conv.Messages[0].Text)
	if len(runes) > previewLen {
		runes = runes[:previewLen]
	}
	return string(runes)
}
