package transport

import (
	"sync"

	"AudioDeck/model"
)

// CutPreview 剪切预览用的临时轨道集合，只在一次播放期间存在
type CutPreview struct {
	mu     sync.Mutex
	tracks []*model.Track
}

// Setup 复制所有选中的可播放轨道并删除 [cutStart, cutEnd)，返回是否生成了预览集合
// 旧集合总是先被清空
func (c *CutPreview) Setup(source TrackStore, cutStart, cutEnd float64) bool {
	c.Clear()

	selected := source.Playable(true)
	if len(selected) == 0 {
		return false
	}

	preview := make([]*model.Track, 0, len(selected))
	for _, t := range selected {
		d := t.Duplicate()
		d.Clear(cutStart, cutEnd)
		preview = append(preview, d)
	}

	c.mu.Lock()
	c.tracks = preview
	c.mu.Unlock()
	return true
}

// Clear 丢弃预览集合，可重复调用
func (c *CutPreview) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks = nil
}

// Tracks 预览集合中的轨道
func (c *CutPreview) Tracks() []*model.Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*model.Track(nil), c.tracks...)
}

// Active 是否存在预览集合
func (c *CutPreview) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tracks) > 0
}
