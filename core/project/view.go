package project

import (
	"sync"

	"AudioDeck/model"
)

// View 项目视图状态（选区与播放区间）
type View struct {
	mu   sync.RWMutex
	info model.ViewInfo
}

// Selection 当前时间选区
func (v *View) Selection() model.SelectedRegion {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.info.Selection
}

// SetSelection 设置时间选区，起止时间会被规范化
func (v *View) SetSelection(r model.SelectedRegion) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.info.Selection = model.NewSelectedRegion(r.T0, r.T1)
}

// PlayRegion 当前播放区间
func (v *View) PlayRegion() model.PlayRegion {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.info.PlayRegion
}

// SetPlayRegion 设置播放区间并标记为激活
func (v *View) SetPlayRegion(start, end float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.info.PlayRegion = model.PlayRegion{Start: start, End: end, Active: true}
}

// Info 视图状态拷贝
func (v *View) Info() model.ViewInfo {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.info
}
