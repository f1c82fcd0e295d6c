package model

import "time"

// ProjectInfo 项目摘要
type ProjectInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	TrackCount int       `json:"trackCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ProjectSnapshot 自动保存内容
type ProjectSnapshot struct {
	ProjectID string            `json:"projectId"`
	Reason    string            `json:"reason"`
	View      ViewInfo          `json:"view"`
	Tracks    []TrackInfo       `json:"tracks"`
	Transport TransportSnapshot `json:"transport"`
	SavedAt   int64             `json:"savedAt"`
}

// CreateTrackRequest 新建轨道请求
type CreateTrackRequest struct {
	Kind     TrackKind `json:"kind"`
	Name     string    `json:"name"`
	Channels int       `json:"channels,omitempty"` // 仅音频轨，默认 1
	Offset   float64   `json:"offset,omitempty"`
	Duration float64   `json:"duration,omitempty"` // 音频轨测试信号长度（秒）
	Selected bool      `json:"selected"`
}
