package transport

import (
	"AudioDeck/config"
	"AudioDeck/core/engine"
	"AudioDeck/core/tracks"
	"AudioDeck/model"
)

// AudioEngine 进程共享的音频引擎
type AudioEngine interface {
	IsBusy() bool
	IsStreamActive() bool
	IsStreamActiveToken(token engine.Token) bool
	IsMonitoring() bool
	IsPaused() bool
	IsScrubbing() bool

	StartStream(tracks engine.TransportTracks, t0, t1 float64, opts engine.StreamOptions) engine.Token
	StopStream()
	SetPaused(paused bool)
	SeekStream(t float64)

	GetStreamTime() float64
	GetNumCaptureChannels() int
	GetOwningProject() engine.Owner
	LostCaptureIntervals() []model.Interval
	LastErrorString() string
}

// TrackStore 项目轨道列表
type TrackStore interface {
	All() []*model.Track
	OfKind(kind model.TrackKind, selectedOnly bool) []*model.Track
	Playable(selectedOnly bool) []*model.Track
	Leaders(kind model.TrackKind) []*model.Track
	Channels(leader *model.Track) []*model.Track
	TimeTrack() *model.Track
	Add(tracks ...*model.Track)
	StartTime() float64
	EndTime() float64

	RegisterPendingChangedTrack(updater tracks.Updater, src *model.Track) *model.Track
	RegisterPendingNewTrack(t *model.Track)
	UpdatePendingTracks()
	ApplyPendingTracks() int
	ClearPendingTracks() int
}

// TrackFactory 按项目采样率创建轨道
type TrackFactory interface {
	NewWaveTrack() *model.Track
	NewLabelTrack() *model.Track
}

// History 撤销历史
type History interface {
	PushState(description, short string)
	ModifyState(wantsAutoSave bool)
	RollbackState()
}

// ViewState 项目视图状态
type ViewState interface {
	Selection() model.SelectedRegion
	SetSelection(r model.SelectedRegion)
	PlayRegion() model.PlayRegion
}

// Notifier 用户可见的提示
type Notifier interface {
	ShowError(title, message, helpPage string)
	ShowWarning(key, message string)
	SetStatus(field, text string)
}

// Scrubber 拖动播放控制
type Scrubber interface {
	StopScrubbing()
	HasMark() bool
	IsSpeedPlaying() bool
	// WasSpeedPlaying 停止后仍保留最近一次是否为变速播放
	WasSpeedPlaying() bool
	Pause(paused bool)
}

// AutoSaver 自动保存
type AutoSaver interface {
	RequestAutoSave(reason string)
}

// DiskCache 录音块缓存
type DiskCache interface {
	AppendBlockLog(log engine.BlockLog) error
	WriteCacheToDisk() error
}

// StatePublisher 传输状态发布
type StatePublisher interface {
	PublishState(snapshot model.TransportSnapshot)
}

// PrefsSource 偏好设置
type PrefsSource interface {
	Transport() config.TransportPrefs
}

// NopScrubber 没有拖动播放功能时使用
type NopScrubber struct{}

func (NopScrubber) StopScrubbing()        {}
func (NopScrubber) HasMark() bool         { return false }
func (NopScrubber) IsSpeedPlaying() bool  { return false }
func (NopScrubber) WasSpeedPlaying() bool { return false }
func (NopScrubber) Pause(bool)            {}

type nopNotifier struct{}

func (nopNotifier) ShowError(string, string, string) {}
func (nopNotifier) ShowWarning(string, string)       {}
func (nopNotifier) SetStatus(string, string)         {}

type nopAutoSaver struct{}

func (nopAutoSaver) RequestAutoSave(string) {}

type nopDiskCache struct{}

func (nopDiskCache) AppendBlockLog(engine.BlockLog) error { return nil }
func (nopDiskCache) WriteCacheToDisk() error              { return nil }

type nopPublisher struct{}

func (nopPublisher) PublishState(model.TransportSnapshot) {}
