// Package project 项目及其控制 goroutine
//
// 每个项目的传输操作都在自己的控制 goroutine 上串行执行；
// 命令之间以及定时器触发时处理传输的空闲队列，并检查流是否已自行结束。
package project

import (
	"context"
	"errors"
	"fmt"
	"time"

	"AudioDeck/config"
	"AudioDeck/core/engine"
	"AudioDeck/core/history"
	"AudioDeck/core/tracks"
	"AudioDeck/core/transport"
	"AudioDeck/logger"
	"AudioDeck/model"
)

const defaultPollInterval = 20 * time.Millisecond

// ErrClosed 控制 goroutine 已退出
var ErrClosed = errors.New("project: control loop stopped")

// AutoSaveStore 保存项目快照
type AutoSaveStore interface {
	RequestAutoSave(projectID, reason string, snapshot model.ProjectSnapshot)
}

// Options 项目的外部依赖；除 Engine 和 Prefs 外都可以为空
type Options struct {
	Engine       transport.AudioEngine
	Prefs        *config.Preferences
	HistoryStore history.Store
	AutoSaves    AutoSaveStore
	Publishers   []transport.StatePublisher
	Notifiers    func(projectID string) transport.Notifier
	DiskCaches   func(projectID string) transport.DiskCache
	PollInterval time.Duration
}

// Project 一个打开的项目
type Project struct {
	id        string
	name      string
	createdAt time.Time

	prefs     *config.Preferences
	view      *View
	tracks    *tracks.TrackList
	factory   *tracks.Factory
	history   *history.Manager
	transport *transport.Manager
	autoSaves AutoSaveStore

	playbackMeter *engine.PeakMeter
	captureMeter  *engine.PeakMeter

	pollInterval time.Duration
	cmds         chan func()
	done         chan struct{}
}

// New 创建项目；调用方负责启动 Run
func New(id, name string, opts Options) *Project {
	p := &Project{
		id:            id,
		name:          name,
		createdAt:     time.Now(),
		prefs:         opts.Prefs,
		view:          &View{},
		tracks:        tracks.NewTrackList(),
		autoSaves:     opts.AutoSaves,
		playbackMeter: &engine.PeakMeter{},
		captureMeter:  &engine.PeakMeter{},
		pollInterval:  opts.PollInterval,
		cmds:          make(chan func()),
		done:          make(chan struct{}),
	}
	if p.pollInterval <= 0 {
		p.pollInterval = defaultPollInterval
	}
	p.factory = tracks.NewFactory(func() float64 { return p.prefs.Transport().ProjectRate })
	p.history = history.NewManager(id, p.tracks, opts.HistoryStore)

	deps := transport.Deps{
		Owner:         engine.Owner(id),
		Engine:        opts.Engine,
		Tracks:        p.tracks,
		Factory:       p.factory,
		View:          p.view,
		History:       p.history,
		Prefs:         p.prefs,
		AutoSaver:     autoSaver{p: p},
		PlaybackMeter: p.playbackMeter,
		CaptureMeter:  p.captureMeter,
	}
	if opts.Notifiers != nil {
		deps.Notifier = opts.Notifiers(id)
	}
	if opts.DiskCaches != nil {
		deps.DiskCache = opts.DiskCaches(id)
	}
	if len(opts.Publishers) > 0 {
		deps.Publisher = publishers(opts.Publishers)
	}
	p.transport = transport.NewManager(deps)
	p.history.SetAutoSaveHook(func() { autoSaver{p: p}.RequestAutoSave("modify") })
	return p
}

// ID 项目ID
func (p *Project) ID() string {
	return p.id
}

// Name 项目名称
func (p *Project) Name() string {
	return p.name
}

// Transport 项目的传输管理器；状态查询可以在任意 goroutine 调用，操作应通过 Do 提交
func (p *Project) Transport() *transport.Manager {
	return p.transport
}

// View 项目视图状态（选区与播放区间）
func (p *Project) View() *View {
	return p.view
}

// Tracks 项目轨道列表
func (p *Project) Tracks() *tracks.TrackList {
	return p.tracks
}

// History 项目撤销历史
func (p *Project) History() *history.Manager {
	return p.history
}

// Info 项目摘要
func (p *Project) Info() model.ProjectInfo {
	return model.ProjectInfo{
		ID:         p.id,
		Name:       p.name,
		TrackCount: p.tracks.Len(),
		CreatedAt:  p.createdAt,
	}
}

// Snapshot 自动保存用的项目快照
func (p *Project) Snapshot(reason string) model.ProjectSnapshot {
	return model.ProjectSnapshot{
		ProjectID: p.id,
		Reason:    reason,
		View:      p.view.Info(),
		Tracks:    p.tracks.Infos(),
		Transport: p.transport.Snapshot(),
		SavedAt:   time.Now().UnixMilli(),
	}
}

// Run 控制 goroutine 主循环，ctx 结束时停止本项目的流并退出；只能调用一次
func (p *Project) Run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	idle := p.transport.Idle()

	logger.Info("项目控制循环启动", logger.String("projectId", p.id))
	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			return
		case cmd := <-p.cmds:
			cmd()
			idle.Drain(0)
		case <-ticker.C:
			idle.Drain(0)
			p.transport.Poll()
		}
	}
}

func (p *Project) shutdown() {
	m := p.transport
	if m.Recording() || m.Playing() {
		if err := m.Stop(true); err != nil {
			logger.Warn("关闭项目时停止传输失败", logger.String("projectId", p.id), logger.ErrorField(err))
		}
	}
	m.Idle().Drain(0)
	logger.Info("项目控制循环退出", logger.String("projectId", p.id))
}

// Do 在控制 goroutine 上执行 fn 并等待结果
func (p *Project) Do(ctx context.Context, fn func(m *transport.Manager) error) error {
	result := make(chan error, 1)
	cmd := func() { result <- fn(p.transport) }

	select {
	case p.cmds <- cmd:
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done 控制 goroutine 退出后关闭
func (p *Project) Done() <-chan struct{} {
	return p.done
}

// AddTracks 按请求新建轨道并记入历史；只能在控制 goroutine 上调用
func (p *Project) AddTracks(req model.CreateTrackRequest) ([]*model.Track, error) {
	name := req.Name
	if name == "" {
		name = p.prefs.Transport().DefaultTrackName
	}

	var created []*model.Track
	switch req.Kind {
	case model.TrackKindWave, "":
		channels := req.Channels
		if channels <= 0 {
			channels = 1
		}
		created = p.factory.NewWaveGroup(name, channels, req.Offset, req.Duration)
	case model.TrackKindLabel:
		created = []*model.Track{model.NewLabelTrack(name)}
	case model.TrackKindNote:
		created = []*model.Track{model.NewNoteTrack(name)}
	case model.TrackKindTime:
		if p.tracks.TimeTrack() != nil {
			return nil, fmt.Errorf("项目已有变速轨")
		}
		created = []*model.Track{model.NewTimeTrack(name)}
	default:
		return nil, fmt.Errorf("未知的轨道类型: %s", req.Kind)
	}

	for _, t := range created {
		t.Selected = req.Selected
	}
	p.tracks.Add(created...)
	p.history.PushState("Added track", "Add Track")

	logger.Info("轨道已创建",
		logger.String("projectId", p.id),
		logger.String("kind", string(created[0].Kind)),
		logger.Int("count", len(created)))
	return created, nil
}

// autoSaver 把传输层的自动保存请求转成项目快照
type autoSaver struct {
	p *Project
}

func (a autoSaver) RequestAutoSave(reason string) {
	if a.p.autoSaves == nil {
		return
	}
	a.p.autoSaves.RequestAutoSave(a.p.id, reason, a.p.Snapshot(reason))
}

// publishers 把状态推送给多个接收方
type publishers []transport.StatePublisher

func (ps publishers) PublishState(s model.TransportSnapshot) {
	for _, p := range ps {
		p.PublishState(s)
	}
}
