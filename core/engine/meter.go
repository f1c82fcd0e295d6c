package engine

import (
	"math"
	"sync"
)

// PeakMeter 记录最近一次的峰值电平
type PeakMeter struct {
	mu      sync.Mutex
	peak    float64
	cleared int
}

// Update 用一组采样更新峰值
func (m *PeakMeter) Update(samples []float32) {
	peak := 0.0
	for _, s := range samples {
		peak = math.Max(peak, math.Abs(float64(s)))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.peak = peak
}

// Peak 当前峰值
func (m *PeakMeter) Peak() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// Clear 清空电平
func (m *PeakMeter) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peak = 0
	m.cleared++
}

// ClearCount Clear 被调用的次数
func (m *PeakMeter) ClearCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleared
}
