package model

import "math"

// SelectedRegion 选区，保证 T0 <= T1
type SelectedRegion struct {
	T0 float64 `json:"t0"`
	T1 float64 `json:"t1"`
}

// NewSelectedRegion 创建选区，自动排序端点
func NewSelectedRegion(t0, t1 float64) SelectedRegion {
	var r SelectedRegion
	r.SetTimes(t0, t1)
	return r
}

// SetTimes 设置选区两端
func (r *SelectedRegion) SetTimes(t0, t1 float64) {
	if t1 < t0 {
		t0, t1 = t1, t0
	}
	r.T0, r.T1 = t0, t1
}

// SetT0 只修改起点；maySwap 为 false 时起点越过终点会把选区收缩为一个点
func (r *SelectedRegion) SetT0(t float64, maySwap bool) {
	if t <= r.T1 {
		r.T0 = t
		return
	}
	if maySwap {
		r.T0, r.T1 = r.T1, t
		return
	}
	r.T0, r.T1 = t, t
}

// Duration 选区长度
func (r SelectedRegion) Duration() float64 {
	return r.T1 - r.T0
}

// IsPoint 是否为点选区
func (r SelectedRegion) IsPoint() bool {
	return r.T0 == r.T1
}

// Contains 判断时间点是否落在选区内（含端点）
func (r SelectedRegion) Contains(t float64) bool {
	return t >= r.T0 && t <= r.T1
}

// PlayRegion 播放区间，Active 表示用户显式设置过
type PlayRegion struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Active bool    `json:"active"`
}

// Selected 转换为规范化的选区
func (p PlayRegion) Selected() SelectedRegion {
	return NewSelectedRegion(p.Start, p.End)
}

// ViewInfo 项目视图状态：当前选区与播放区间
type ViewInfo struct {
	Selection  SelectedRegion `json:"selection"`
	PlayRegion PlayRegion     `json:"playRegion"`
}

// Interval 录音丢失区间
type Interval struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// Unbounded marks a recording without an end time.
const Unbounded = math.MaxFloat64
