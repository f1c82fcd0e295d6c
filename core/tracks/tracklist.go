package tracks

import (
	"math"
	"sync"

	"AudioDeck/model"
)

// Updater 在待提交副本与原轨道之间同步非采样数据
type Updater func(dst, src *model.Track)

type pendingEntry struct {
	track    *model.Track
	original *model.Track // nil 表示新增轨道
	updater  Updater
}

// TrackList 项目的轨道列表
// 录音期间的修改先登记到暂存表，提交时整体生效，回滚时整体丢弃
type TrackList struct {
	mu     sync.RWMutex
	tracks []*model.Track

	// 暂存表：轨道ID -> 替换或新增
	pending      map[string]*pendingEntry
	pendingOrder []string
}

// NewTrackList 创建轨道列表
func NewTrackList(tracks ...*model.Track) *TrackList {
	l := &TrackList{pending: make(map[string]*pendingEntry)}
	l.tracks = append(l.tracks, tracks...)
	return l
}

// Add 追加轨道
func (l *TrackList) Add(tracks ...*model.Track) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracks = append(l.tracks, tracks...)
}

// Remove 按ID移除轨道
func (l *TrackList) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, t := range l.tracks {
		if t.ID == id {
			l.tracks = append(l.tracks[:i:i], l.tracks[i+1:]...)
			return true
		}
	}
	return false
}

// Get 按ID查找轨道
func (l *TrackList) Get(id string) *model.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, t := range l.tracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// All 全部轨道（列表顺序）
func (l *TrackList) All() []*model.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*model.Track(nil), l.tracks...)
}

// Len 轨道数量
func (l *TrackList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tracks)
}

// OfKind 指定类型的轨道，selectedOnly 为 true 时只取选中的
func (l *TrackList) OfKind(kind model.TrackKind, selectedOnly bool) []*model.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*model.Track
	for _, t := range l.tracks {
		if t.Kind != kind || (selectedOnly && !t.Selected) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Playable 可播放轨道（音频轨和音符轨）
func (l *TrackList) Playable(selectedOnly bool) []*model.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*model.Track
	for _, t := range l.tracks {
		if !t.IsPlayable() || (selectedOnly && !t.Selected) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Leaders 指定类型的声道组首轨
func (l *TrackList) Leaders(kind model.TrackKind) []*model.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*model.Track
	for _, t := range l.tracks {
		if t.Kind == kind && t.IsLeader() {
			out = append(out, t)
		}
	}
	return out
}

// Channels 与 leader 同组的全部声道（列表顺序）
func (l *TrackList) Channels(leader *model.Track) []*model.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*model.Track
	for _, t := range l.tracks {
		if t.GroupID == leader.GroupID {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		out = append(out, leader)
	}
	return out
}

// GroupChannels 把 tracks 编为一个多声道组，首个为 leader
func GroupChannels(tracks []*model.Track) {
	if len(tracks) == 0 {
		return
	}
	leader := tracks[0]
	leader.GroupID = leader.ID
	for _, t := range tracks[1:] {
		t.GroupID = leader.ID
	}
}

// TimeTrack 第一个变速轨
func (l *TrackList) TimeTrack() *model.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, t := range l.tracks {
		if t.Kind == model.TrackKindTime {
			return t
		}
	}
	return nil
}

// StartTime 所有有内容轨道的最早起点，没有内容时为 0
func (l *TrackList) StartTime() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := math.Inf(1)
	for _, t := range l.tracks {
		if t.HasContent() {
			start = math.Min(start, t.StartTime())
		}
	}
	if math.IsInf(start, 1) {
		return 0
	}
	return start
}

// EndTime 所有有内容轨道的最晚终点，没有内容时为 0
func (l *TrackList) EndTime() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return maxEnd(l.tracks)
}

// MaxEndTime tracks 中的最晚终点
func MaxEndTime(tracks []*model.Track) float64 {
	return maxEnd(tracks)
}

func maxEnd(tracks []*model.Track) float64 {
	end := math.Inf(-1)
	for _, t := range tracks {
		if t.HasContent() {
			end = math.Max(end, t.EndTime())
		}
	}
	if math.IsInf(end, -1) {
		return 0
	}
	return end
}

// ========== 暂存表 ==========

// RegisterPendingChangedTrack 为 src 登记一个待提交的替换副本并返回副本
func (l *TrackList) RegisterPendingChangedTrack(updater Updater, src *model.Track) *model.Track {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.pending[src.ID]; ok {
		return e.track
	}
	copyTrack := src.Duplicate()
	l.pending[src.ID] = &pendingEntry{track: copyTrack, original: src, updater: updater}
	l.pendingOrder = append(l.pendingOrder, src.ID)
	return copyTrack
}

// RegisterPendingNewTrack 登记一个待提交的新轨道
func (l *TrackList) RegisterPendingNewTrack(t *model.Track) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.pending[t.ID]; ok {
		return
	}
	l.pending[t.ID] = &pendingEntry{track: t}
	l.pendingOrder = append(l.pendingOrder, t.ID)
}

// UpdatePendingTracks 把原轨道的非采样修改同步到待提交副本
func (l *TrackList) UpdatePendingTracks() {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, id := range l.pendingOrder {
		e := l.pending[id]
		if e.original != nil && e.updater != nil {
			e.updater(e.track, e.original)
		}
	}
}

// PendingTracks 暂存表中的轨道（登记顺序）
func (l *TrackList) PendingTracks() []*model.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*model.Track, 0, len(l.pendingOrder))
	for _, id := range l.pendingOrder {
		out = append(out, l.pending[id].track)
	}
	return out
}

// HasPending 是否有待提交修改
func (l *TrackList) HasPending() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pendingOrder) > 0
}

// ApplyPendingTracks 一次性提交暂存表：替换原位，新增追加到末尾
func (l *TrackList) ApplyPendingTracks() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pendingOrder) == 0 {
		return 0
	}

	next := make([]*model.Track, 0, len(l.tracks)+len(l.pendingOrder))
	for _, t := range l.tracks {
		if e, ok := l.pending[t.ID]; ok && e.original != nil {
			if e.updater != nil {
				e.updater(e.track, e.original)
			}
			next = append(next, e.track)
			continue
		}
		next = append(next, t)
	}
	for _, id := range l.pendingOrder {
		if e := l.pending[id]; e.original == nil {
			next = append(next, e.track)
		}
	}

	applied := len(l.pendingOrder)
	l.tracks = next
	l.resetPendingLocked()
	return applied
}

// ClearPendingTracks 丢弃暂存表，轨道列表保持不变
func (l *TrackList) ClearPendingTracks() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.pendingOrder)
	l.resetPendingLocked()
	return n
}

func (l *TrackList) resetPendingLocked() {
	l.pending = make(map[string]*pendingEntry)
	l.pendingOrder = nil
}

// ========== 快照 ==========

// Snapshot 深拷贝当前轨道
func (l *TrackList) Snapshot() []*model.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*model.Track, 0, len(l.tracks))
	for _, t := range l.tracks {
		out = append(out, t.Duplicate())
	}
	return out
}

// Restore 用快照替换当前轨道
func (l *TrackList) Restore(snapshot []*model.Track) {
	next := make([]*model.Track, 0, len(snapshot))
	for _, t := range snapshot {
		next = append(next, t.Duplicate())
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracks = next
}

// EqualTracks 两组轨道结构相等
func EqualTracks(a, b []*model.Track) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Infos 轨道摘要列表
func (l *TrackList) Infos() []model.TrackInfo {
	all := l.All()
	out := make([]model.TrackInfo, 0, len(all))
	for _, t := range all {
		out = append(out, t.Info())
	}
	return out
}
