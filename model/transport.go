package model

// TransportSnapshot 项目传输状态快照，推送给 UI、写入 Redis
type TransportSnapshot struct {
	ProjectID     string         `json:"projectId"`
	Token         int            `json:"token"`
	Playing       bool           `json:"playing"`
	Recording     bool           `json:"recording"`
	CanStop       bool           `json:"canStop"`
	Paused        bool           `json:"paused"`
	Looping       bool           `json:"looping"`
	Cutting       bool           `json:"cutting"`
	Appending     bool           `json:"appending"`
	Stopping      bool           `json:"stopping"`
	StreamTime    float64        `json:"streamTime"`
	DisplayedRate int            `json:"displayedRate"`
	LastPlayMode  string         `json:"lastPlayMode"`
	Selection     SelectedRegion `json:"selection"`
	UpdatedAt     int64          `json:"updatedAt"`
}

// TransportEvent 传输事件，经 WebSocket / Redis 频道广播
type TransportEvent struct {
	Type      string      `json:"type"` // state, error, warning, status
	ProjectID string      `json:"projectId"`
	Title     string      `json:"title,omitempty"`
	Message   string      `json:"message,omitempty"`
	HelpPage  string      `json:"helpPage,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// 事件类型
const (
	EventTypeState   = "state"
	EventTypeError   = "error"
	EventTypeWarning = "warning"
	EventTypeStatus  = "status"
)
