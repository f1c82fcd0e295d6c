// Package transport 项目的播放/录音传输控制
//
// Manager 决定播放或录音的时间范围和轨道，启动与停止进程共享的音频引擎，
// 为剪切预览生成临时轨道，为录音选择或新建轨道，并维护本项目的会话状态。
// 公开方法应在项目的控制 goroutine 上调用；引擎回调只做轻量工作，
// 需要提示用户或再次操作引擎的部分放进 IdleQueue 延后执行。
package transport

import (
	"fmt"
	"math"
	"sync"
	"time"

	"AudioDeck/config"
	"AudioDeck/core/engine"
	"AudioDeck/logger"
	"AudioDeck/model"
)

// Stop 在停止引擎前最多处理的空闲任务数
const maxIdleDrain = 64

// Deps Manager 的协作者；Notifier 之后的字段可以为空
type Deps struct {
	Owner   engine.Owner
	Engine  AudioEngine
	Tracks  TrackStore
	Factory TrackFactory
	View    ViewState
	History History
	Prefs   PrefsSource

	Notifier      Notifier
	Scrubber      Scrubber
	AutoSaver     AutoSaver
	DiskCache     DiskCache
	Publisher     StatePublisher
	Idle          *IdleQueue
	PlaybackMeter engine.Meter
	CaptureMeter  engine.Meter
	Clock         func() time.Time
}

// Manager 单个项目的传输管理器
type Manager struct {
	owner     engine.Owner
	engine    AudioEngine
	tracks    TrackStore
	factory   TrackFactory
	view      ViewState
	history   History
	prefs     PrefsSource
	notifier  Notifier
	scrubber  Scrubber
	autoSaver AutoSaver
	diskCache DiskCache
	publisher StatePublisher
	idle      *IdleQueue
	clock     func() time.Time

	playbackMeter engine.Meter
	captureMeter  engine.Meter

	cutPreview CutPreview
	listener   *listener

	mu                   sync.Mutex
	token                engine.Token
	commitToken          engine.Token // 引擎提交录音时本项目持有的流
	looping              bool
	cutting              bool
	paused               bool
	stopping             bool
	appending            bool
	timerRecordCancelled bool
	displayedRate        int
	lastPlayMode         PlayMode
}

// NewManager 创建传输管理器
func NewManager(deps Deps) *Manager {
	m := &Manager{
		owner:         deps.Owner,
		engine:        deps.Engine,
		tracks:        deps.Tracks,
		factory:       deps.Factory,
		view:          deps.View,
		history:       deps.History,
		prefs:         deps.Prefs,
		notifier:      deps.Notifier,
		scrubber:      deps.Scrubber,
		autoSaver:     deps.AutoSaver,
		diskCache:     deps.DiskCache,
		publisher:     deps.Publisher,
		idle:          deps.Idle,
		clock:         deps.Clock,
		playbackMeter: deps.PlaybackMeter,
		captureMeter:  deps.CaptureMeter,
		token:         engine.NoToken,
		commitToken:   engine.NoToken,
	}
	if m.notifier == nil {
		m.notifier = nopNotifier{}
	}
	if m.scrubber == nil {
		m.scrubber = NopScrubber{}
	}
	if m.autoSaver == nil {
		m.autoSaver = nopAutoSaver{}
	}
	if m.diskCache == nil {
		m.diskCache = nopDiskCache{}
	}
	if m.publisher == nil {
		m.publisher = nopPublisher{}
	}
	if m.idle == nil {
		m.idle = NewIdleQueue()
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	m.listener = &listener{m: m}
	return m
}

// Owner 本项目在引擎中的标识
func (m *Manager) Owner() engine.Owner {
	return m.owner
}

// Idle 本项目的延迟任务队列
func (m *Manager) Idle() *IdleQueue {
	return m.idle
}

// Listener 传给引擎的回调对象
func (m *Manager) Listener() engine.Listener {
	return m.listener
}

func (m *Manager) transportPrefs() config.TransportPrefs {
	return m.prefs.Transport()
}

// DefaultPlayOptions 本项目的默认流参数
func (m *Manager) DefaultPlayOptions() engine.StreamOptions {
	return engine.StreamOptions{
		Owner:         m.owner,
		Rate:          m.transportPrefs().ProjectRate,
		Envelope:      m.tracks.TimeTrack(),
		PlaybackMeter: m.playbackMeter,
		CaptureMeter:  m.captureMeter,
		Listener:      m.listener,
	}
}

// ========== 状态查询 ==========

// CanStop 没有活动流、只是在监听、或活动流属于本项目时为 true
func (m *Manager) CanStop() bool {
	return !m.engine.IsStreamActive() ||
		m.engine.IsMonitoring() ||
		m.engine.GetOwningProject() == m.owner
}

// Playing 本项目正在播放（不含监听和录音）
func (m *Manager) Playing() bool {
	return m.engine.IsBusy() &&
		m.CanStop() &&
		!m.engine.IsMonitoring() &&
		m.engine.GetNumCaptureChannels() == 0
}

// Recording 本项目正在录音
func (m *Manager) Recording() bool {
	return m.engine.IsBusy() &&
		m.CanStop() &&
		m.engine.GetNumCaptureChannels() > 0
}

// Token 本项目持有的流标识，没有时为 NoToken
func (m *Manager) Token() engine.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Paused 本项目是否处于暂停
func (m *Manager) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Looping 是否在循环播放
func (m *Manager) Looping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.looping
}

// Cutting 是否在剪切预览播放
func (m *Manager) Cutting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cutting
}

// Appending 录音是否追加到现有轨道
func (m *Manager) Appending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appending
}

// Stopping 是否正在停止流
func (m *Manager) Stopping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopping
}

// DisplayedRate 引擎最近报告的采样率
func (m *Manager) DisplayedRate() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.displayedRate
}

// LastPlayMode 最近一次播放使用的模式
func (m *Manager) LastPlayMode() PlayMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPlayMode
}

// CutPreviewTracks 当前的剪切预览轨道
func (m *Manager) CutPreviewTracks() []*model.Track {
	return m.cutPreview.Tracks()
}

// Snapshot 当前传输状态
func (m *Manager) Snapshot() model.TransportSnapshot {
	s := model.TransportSnapshot{
		ProjectID:  string(m.owner),
		Playing:    m.Playing(),
		Recording:  m.Recording(),
		CanStop:    m.CanStop(),
		StreamTime: m.engine.GetStreamTime(),
		Selection:  m.view.Selection(),
		UpdatedAt:  m.clock().UnixMilli(),
	}

	m.mu.Lock()
	s.Token = int(m.token)
	s.Paused = m.paused
	s.Looping = m.looping
	s.Cutting = m.cutting
	s.Appending = m.appending
	s.Stopping = m.stopping
	s.DisplayedRate = m.displayedRate
	s.LastPlayMode = m.lastPlayMode.String()
	m.mu.Unlock()
	return s
}

func (m *Manager) publishState() {
	m.publisher.PublishState(m.Snapshot())
}

func (m *Manager) setStopping(v bool) {
	m.mu.Lock()
	m.stopping = v
	m.mu.Unlock()
}

func (m *Manager) refuse(op string, err error) error {
	refusalsTotal.WithLabelValues(op).Inc()
	logger.Debug("transport request refused",
		logger.String("project", string(m.owner)),
		logger.String("op", op),
		logger.ErrorField(err))
	return err
}

// ========== 播放 ==========

// allPlaybackTracks 全部音频轨作为回放轨，useMidi 时加上音符轨
func allPlaybackTracks(store TrackStore, tracks []*model.Track, selectedOnly, useMidi bool) engine.TransportTracks {
	if tracks == nil {
		tracks = store.All()
	}
	var tt engine.TransportTracks
	for _, t := range tracks {
		if selectedOnly && !t.Selected {
			continue
		}
		switch t.Kind {
		case model.TrackKindWave:
			tt.PlaybackTracks = append(tt.PlaybackTracks, t)
		case model.TrackKindNote:
			if useMidi {
				tt.MidiTracks = append(tt.MidiTracks, t)
			}
		}
	}
	return tt
}

// PlayPlayRegion 播放 region；backwards 表示倒放，playWhiteSpace 允许播放到音频结束之后
// 成功时返回流标识；失败时会话标志保持未播放状态
func (m *Manager) PlayPlayRegion(region model.SelectedRegion, opts engine.StreamOptions,
	mode PlayMode, backwards, playWhiteSpace bool) (token engine.Token, err error) {
	if !m.CanStop() {
		return engine.FailedToken, m.refuse("play", ErrRefused)
	}
	if m.engine.IsBusy() {
		return engine.FailedToken, m.refuse("play", ErrBusy)
	}
	defer m.publishState()

	cutPreview := mode == CutPreviewPlay
	m.mu.Lock()
	m.looping = mode == LoopedPlay
	m.cutting = cutPreview
	m.mu.Unlock()

	success := false
	defer func() {
		if !success {
			m.mu.Lock()
			m.looping = false
			m.cutting = false
			m.mu.Unlock()
		}
	}()

	if cutPreview && region.IsPoint() {
		return engine.FailedToken, m.refuse("play", ErrCutPreviewEmptyRange)
	}

	m.mu.Lock()
	m.lastPlayMode = mode
	m.mu.Unlock()

	// 拖动播放时不播放音符轨
	useMidi := !opts.Scrubbing
	var hasAudio bool
	if useMidi {
		hasAudio = len(m.tracks.Playable(false)) > 0
	} else {
		hasAudio = len(m.tracks.OfKind(model.TrackKindWave, false)) > 0
	}
	if !hasAudio {
		return engine.FailedToken, ErrNoAudioTracks
	}

	opts.PlayLooped = opts.PlayLooped || mode == LoopedPlay
	t0, t1, ok := ResolvePlayRegion(RegionRequest{
		Region:         region,
		Looped:         opts.PlayLooped,
		Backwards:      backwards,
		PlayWhiteSpace: playWhiteSpace,
		Selection:      m.view.Selection(),
		TrackStart:     m.tracks.StartTime(),
		TrackEnd:       m.tracks.EndTime(),
	})
	if !ok {
		return engine.FailedToken, ErrNothingToPlay
	}

	kind := mode.String()
	if cutPreview {
		prefs := m.transportPrefs()
		play0, play1, gapStart, gapLen := CutPreviewBounds(t0, t1, prefs.CutPreviewBeforeLen, prefs.CutPreviewAfterLen)
		if !m.cutPreview.Setup(m.tracks, math.Min(t0, t1), math.Max(t0, t1)) {
			return engine.FailedToken, ErrCutPreviewUnavailable
		}
		opts.CutPreviewGapStart = gapStart
		opts.CutPreviewGapLen = gapLen
		token = m.engine.StartStream(
			allPlaybackTracks(m.tracks, m.cutPreview.Tracks(), false, useMidi),
			play0, play1, opts)
	} else {
		token = m.engine.StartStream(allPlaybackTracks(m.tracks, nil, false, useMidi), t0, t1, opts)
	}
	observeStart(kind, token != engine.FailedToken)

	if token == engine.FailedToken {
		m.cutPreview.Clear()
		reason := m.engine.LastErrorString()
		logger.Warn("playback stream failed to start",
			logger.String("project", string(m.owner)),
			logger.String("mode", kind),
			logger.String("reason", reason))
		// 错误提示延后到空闲时，避免在拖动播放的定时回调里递归
		m.idle.CallAfter(func() {
			m.notifier.ShowError(errorTitle, soundDeviceErrorText, soundDeviceHelpPage)
		})
		return engine.FailedToken, fmt.Errorf("%w: %s", ErrStreamStartFailed, reason)
	}

	success = true
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()

	logger.Info("playback started",
		logger.String("project", string(m.owner)),
		logger.Int("token", int(token)),
		logger.String("mode", kind),
		logger.Float64("t0", t0),
		logger.Float64("t1", t1))
	return token, nil
}

// PlayCurrentRegion 播放视图中的播放区间
func (m *Manager) PlayCurrentRegion(looped, cutPreview bool) error {
	if !m.CanStop() {
		return m.refuse("play", ErrRefused)
	}

	pr := m.view.PlayRegion()
	opts := m.DefaultPlayOptions()
	opts.PlayLooped = looped
	if cutPreview {
		opts.Envelope = nil
	}
	mode := NormalPlay
	switch {
	case cutPreview:
		mode = CutPreviewPlay
	case looped:
		mode = LoopedPlay
	}
	_, err := m.PlayPlayRegion(pr.Selected(), opts, mode, false, false)
	return err
}

// ========== 停止与暂停 ==========

// Stop 停止本项目的流；stopStream 为 false 时只清理状态（流已自行结束）
// 不能控制当前流时不做任何事
func (m *Manager) Stop(stopStream bool) error {
	if !m.CanStop() {
		return m.refuse("stop", ErrRefused)
	}
	defer m.publishState()

	m.scrubber.StopScrubbing()

	defer m.setStopping(false)

	if stopStream && m.engine.IsBusy() {
		m.setStopping(true)
		m.publishState()
		m.idle.Drain(maxIdleDrain)
	}

	if stopStream {
		m.engine.StopStream()
		streamStops.Inc()
	}

	m.resetAfterStop()

	if err := m.diskCache.WriteCacheToDisk(); err != nil {
		logger.Warn("flush capture cache failed", logger.String("project", string(m.owner)), logger.ErrorField(err))
	}

	logger.Info("transport stopped",
		logger.String("project", string(m.owner)),
		logger.Bool("stopStream", stopStream))
	return nil
}

// resetAfterStop 流结束后清理会话状态并恢复引擎的暂停标志；只能在 CanStop 时调用
func (m *Manager) resetAfterStop() {
	m.resetLocalState()
	m.engine.SetPaused(false)
}

// resetLocalState 只清理本项目的状态，不操作引擎
func (m *Manager) resetLocalState() {
	m.mu.Lock()
	m.looping = false
	m.cutting = false
	m.paused = false
	m.token = engine.NoToken
	m.mu.Unlock()

	m.cutPreview.Clear()

	if m.playbackMeter != nil {
		m.playbackMeter.Clear()
	}
	if m.captureMeter != nil {
		m.captureMeter.Clear()
	}
}

// ClearCutPreviewTracks 丢弃剪切预览轨道
func (m *Manager) ClearCutPreviewTracks() {
	m.cutPreview.Clear()
}

// Pause 不能控制当前流时切换引擎的全局暂停，否则切换本项目的暂停
func (m *Manager) Pause() {
	if !m.CanStop() {
		m.engine.SetPaused(!m.engine.IsPaused())
		return
	}
	m.OnPause()
}

// OnPause 切换本项目的暂停状态
// 暂停拖动或定位播放时直接停止
func (m *Manager) OnPause() {
	if !m.CanStop() {
		return
	}

	m.mu.Lock()
	paused := !m.paused
	m.paused = paused
	m.mu.Unlock()

	scrubbing := m.engine.IsScrubbing()
	if paused && scrubbing && !m.scrubber.IsSpeedPlaying() {
		_ = m.Stop(true)
		return
	}

	if scrubbing {
		m.scrubber.Pause(paused)
	} else {
		m.engine.SetPaused(paused)
	}
	m.publishState()
}

// StopIfPaused 引擎处于暂停时停止
func (m *Manager) StopIfPaused() {
	if m.engine.IsPaused() {
		_ = m.Stop(true)
	}
}

// Poll 由控制 goroutine 定期调用，发现本项目的流已自行结束时清理状态
// 引擎已被其他项目占用时只清理本项目的状态
func (m *Manager) Poll() {
	token := m.Token()
	if token <= 0 || m.engine.IsStreamActiveToken(token) {
		return
	}
	if m.CanStop() {
		_ = m.Stop(false)
		return
	}
	m.resetLocalState()
	m.publishState()
}
