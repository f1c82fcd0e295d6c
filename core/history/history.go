package history

import (
	"context"
	"sync"
	"time"

	"AudioDeck/core/tracks"
	"AudioDeck/logger"
	"AudioDeck/model"
)

// Store 持久化历史记录
type Store interface {
	Append(ctx context.Context, record *model.HistoryRecord) error
}

type state struct {
	description string
	short       string
	tracks      []*model.Track
}

// Manager 项目的撤销历史
type Manager struct {
	projectID string
	tracks    *tracks.TrackList
	store     Store

	mu     sync.Mutex
	states []state
	seq    int64

	// 注入点，便于测试
	onAutoSave func()
}

// NewManager 创建历史管理器，并把当前轨道作为初始状态
func NewManager(projectID string, list *tracks.TrackList, store Store) *Manager {
	m := &Manager{projectID: projectID, tracks: list, store: store}
	m.states = append(m.states, state{description: "Created new project", tracks: list.Snapshot()})
	return m
}

// SetAutoSaveHook 设置 ModifyState(true) 时触发的自动保存
func (m *Manager) SetAutoSaveHook(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAutoSave = fn
}

// PushState 记录一个新的历史状态
func (m *Manager) PushState(description, short string) {
	snapshot := m.tracks.Snapshot()

	m.mu.Lock()
	m.states = append(m.states, state{description: description, short: short, tracks: snapshot})
	depth := len(m.states)
	m.mu.Unlock()

	m.persist(model.HistoryKindPush, description, short, len(snapshot), depth)
}

// ModifyState 用当前轨道覆盖栈顶状态
func (m *Manager) ModifyState(wantsAutoSave bool) {
	snapshot := m.tracks.Snapshot()

	m.mu.Lock()
	top := &m.states[len(m.states)-1]
	top.tracks = snapshot
	desc, short, depth := top.description, top.short, len(m.states)
	hook := m.onAutoSave
	m.mu.Unlock()

	m.persist(model.HistoryKindModify, desc, short, len(snapshot), depth)
	if wantsAutoSave && hook != nil {
		hook()
	}
}

// RollbackState 把轨道恢复到栈顶状态
func (m *Manager) RollbackState() {
	m.mu.Lock()
	top := m.states[len(m.states)-1]
	depth := len(m.states)
	m.mu.Unlock()

	m.tracks.Restore(top.tracks)
	m.persist(model.HistoryKindRollback, top.description, top.short, len(top.tracks), depth)
}

// Depth 历史状态数量
func (m *Manager) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

// Current 栈顶状态的描述
func (m *Manager) Current() (description, short string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	top := m.states[len(m.states)-1]
	return top.description, top.short
}

func (m *Manager) persist(kind, description, short string, trackCount, depth int) {
	if m.store == nil {
		return
	}

	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	record := &model.HistoryRecord{
		ProjectID:        m.projectID,
		Seq:              seq,
		Kind:             kind,
		Description:      description,
		ShortDescription: short,
		TrackCount:       trackCount,
		Depth:            depth,
		CreatedAt:        time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.store.Append(ctx, record); err != nil {
		logger.Warn("保存历史记录失败",
			logger.String("projectId", m.projectID),
			logger.String("kind", kind),
			logger.ErrorField(err))
	}
}
