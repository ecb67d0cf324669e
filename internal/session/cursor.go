package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"support-desk-go/internal/model"
	"support-desk-go/pkg/log"
)

// ViewState 是会话视图的显式状态机状态。
// 散落的布尔标志（isTyping/isLoadingOlder/...）已由此枚举取代，
// 所有迁移集中在 transition 一处。
type ViewState int

const (
	StateIdle ViewState = iota
	StateFetchingInitial
	StateReady
	StateFetchingOlder
	StateStreaming
)

func (s ViewState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateFetchingInitial:
		return "FetchingInitial"
	case StateReady:
		return "Ready"
	case StateFetchingOlder:
		return "FetchingOlder"
	case StateStreaming:
		return "Streaming"
	}
	return "Unknown"
}

// validTransitions 枚举全部合法状态迁移。
// FetchingOlder/Streaming 不允许直接进入 FetchingInitial：
// 同一会话上的初始加载只会从 Idle 发起；切换会话意味着换一个新视图。
var validTransitions = map[ViewState][]ViewState{
	StateIdle:            {StateFetchingInitial},
	StateFetchingInitial: {StateReady},
	StateReady:           {StateFetchingOlder, StateStreaming},
	StateFetchingOlder:   {StateReady},
	StateStreaming:       {StateReady},
}

// HistoryFetcher 抽象助手后端的历史分页接口。
// 返回值 hasMore 为 nil 时表示后端未显式给出，由调用方按整页推断。
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, chatID string, page, pageSize int) (messages []model.Message, hasMore *bool, err error)
}

// ChatView 驱动单个会话视图的回溯分页与状态迁移。
// 回溯拉取（较早历史页）不干扰尾部追加语义，也不破坏可见滚动位置。
type ChatView struct {
	mu      sync.Mutex
	state   ViewState
	conv    *model.Conversation
	fetcher HistoryFetcher

	pageSize    int
	thresholdPx int
	inFlight    bool
	// epoch 在会话切换时递增；迟到的异步结果据此判定过期并丢弃
	epoch int
}

// NewChatView 为一个会话创建视图，初始状态 Idle。
func NewChatView(conv *model.Conversation, fetcher HistoryFetcher, pageSize, thresholdPx int) *ChatView {
	if pageSize <= 0 {
		pageSize = 10
	}
	if thresholdPx <= 0 {
		thresholdPx = 80
	}
	return &ChatView{
		state:       StateIdle,
		conv:        conv,
		fetcher:     fetcher,
		pageSize:    pageSize,
		thresholdPx: thresholdPx,
	}
}

// State 返回当前状态。
func (v *ChatView) State() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Conversation 返回视图当前绑定的会话。
func (v *ChatView) Conversation() *model.Conversation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conv
}

// transition 是唯一的状态迁移入口。调用方必须持有 v.mu。
func (v *ChatView) transition(to ViewState) error {
	for _, allowed := range validTransitions[v.state] {
		if allowed == to {
			v.state = to
			return nil
		}
	}
	return fmt.Errorf("illegal view state transition: %s -> %s", v.state, to)
}

// LoadInitial 执行首次加载：缓存中已有消息则直接就绪，否则拉取第一页。
// 失败也保证离开 FetchingInitial（回到 Ready 的空列表），错误交由上层提示。
func (v *ChatView) LoadInitial(ctx context.Context) error {
	v.mu.Lock()
	if err := v.transition(StateFetchingInitial); err != nil {
		v.mu.Unlock()
		return err
	}
	conv := v.conv
	v.mu.Unlock()

	var fetchErr error
	if len(conv.Messages) == 0 && conv.ChatID != "" {
		msgs, hasMore, err := v.fetcher.FetchHistory(ctx, conv.ChatID, 1, v.pageSize)
		if err != nil {
			fetchErr = fmt.Errorf("failed to load initial history: %w", err)
		} else {
			for i := range msgs {
				m := msgs[i]
				conv.Messages = append(conv.Messages, &m)
			}
			sortByTimestamp(conv)
			conv.HasMore = inferHasMore(hasMore, len(msgs), v.pageSize)
			conv.CursorPage = 1
		}
	}

	v.mu.Lock()
	if err := v.transition(StateReady); err != nil {
		v.mu.Unlock()
		return err
	}
	v.mu.Unlock()
	return fetchErr
}

// BeginStreaming 进入流式回复状态。
func (v *ChatView) BeginStreaming() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.transition(StateStreaming)
}

// EndStreaming 在流完成或中止后回到就绪状态。
func (v *ChatView) EndStreaming() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.transition(StateReady)
}

// SwitchConversation 切换到另一个会话并废弃所有在途异步结果。
func (v *ChatView) SwitchConversation(conv *model.Conversation) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.conv = conv
	v.epoch++
	v.inFlight = false
	v.state = StateIdle
}

// ShouldFetchMore 仅当滚动容器距顶部不超过阈值、当前无在途拉取、
// 且仍有更早历史时返回 true。保证同一时刻至多一个回溯拉取在途。
func (v *ChatView) ShouldFetchMore(offsetTopPx int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return offsetTopPx <= v.thresholdPx &&
		!v.inFlight &&
		v.state == StateReady &&
		v.conv.HasMore
}

// FetchOlder 拉取下一页（CursorPage+1）较早历史并合并到列表头部。
// 合并按消息 ID 去重（已缓存的副本永不被覆盖），合并后整体按时间戳稳定重排。
// 成功才推进 CursorPage；失败回到 Ready 并将 HasMore 置 false 以阻断重试风暴。
func (v *ChatView) FetchOlder(ctx context.Context) error {
	v.mu.Lock()
	if v.inFlight || !v.conv.HasMore {
		v.mu.Unlock()
		return nil
	}
	if err := v.transition(StateFetchingOlder); err != nil {
		v.mu.Unlock()
		return err
	}
	v.inFlight = true
	conv := v.conv
	epoch := v.epoch
	chatID, orgID, userID := conv.ChatID, conv.OrgID, conv.UserID
	page := conv.CursorPage + 1
	v.mu.Unlock()

	msgs, hasMore, err := v.fetcher.FetchHistory(ctx, chatID, page, v.pageSize)

	v.mu.Lock()
	defer v.mu.Unlock()

	// 过期检查：结果到达时若会话已被切换，丢弃结果，不触碰新会话的状态
	if epoch != v.epoch || chatID != v.conv.ChatID || orgID != v.conv.OrgID || userID != v.conv.UserID {
		log.Infof("丢弃过期的历史分页结果: chatId=%s, page=%d", chatID, page)
		return nil
	}
	v.inFlight = false
	if terr := v.transition(StateReady); terr != nil {
		return terr
	}

	if err != nil {
		conv.HasMore = false
		return fmt.Errorf("failed to fetch older page %d: %w", page, err)
	}

	mergeOlder(conv, msgs)
	conv.HasMore = inferHasMore(hasMore, len(msgs), v.pageSize)
	conv.CursorPage = page
	return nil
}

// AdjustScroll 返回合并后应设置的滚动偏移：原偏移加上新插入内容引入的高度差。
// 必须在 DOM/布局反映新消息之后应用，使先前可见的消息保持可见。
func AdjustScroll(prevContentHeight, newContentHeight, offset int) int {
	return offset + (newContentHeight - prevContentHeight)
}

// mergeOlder 将一页较早消息并入会话：按 ID 去重后头部插入，再整体稳定排序。
func mergeOlder(conv *model.Conversation, older []model.Message) {
	if len(older) == 0 {
		return
	}
	seen := make(map[string]struct{}, len(conv.Messages))
	for _, m := range conv.Messages {
		seen[m.ID] = struct{}{}
	}
	fresh := lo.Filter(older, func(m model.Message, _ int) bool {
		_, dup := seen[m.ID]
		return !dup
	})

	merged := make([]*model.Message, 0, len(fresh)+len(conv.Messages))
	for i := range fresh {
		m := fresh[i]
		merged = append(merged, &m)
	}
	merged = append(merged, conv.Messages...)
	conv.Messages = merged
	sortByTimestamp(conv)
}

// sortByTimestamp 按时间戳升序稳定排序，容忍本地追加与服务端拉取之间的乱序到达。
func sortByTimestamp(conv *model.Conversation) {
	sort.SliceStable(conv.Messages, func(i, j int) bool {
		return conv.Messages[i].Timestamp < conv.Messages[j].Timestamp
	})
}

// inferHasMore 优先使用后端显式标志，缺失时按整页推断。
func inferHasMore(explicit *bool, got, pageSize int) bool {
	if explicit != nil {
		return *explicit
	}
	return got == pageSize
}
