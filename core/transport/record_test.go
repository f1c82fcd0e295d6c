package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"AudioDeck/config"
	"AudioDeck/core/engine"
	"AudioDeck/core/tracks"
	"AudioDeck/model"
)

func TestRecordToNewTracks(t *testing.T) {
	existing := waveGroup("a", 1, 1, true)
	f := newFixture(t, "p1", existing...)
	f.setPrefs(func(p *config.TransportPrefs) { p.TrackNameUseNumber = true })

	require.NoError(t, f.mgr.OnRecord(true))
	assert.True(t, f.mgr.Recording())
	assert.False(t, f.mgr.Playing())
	assert.False(t, f.mgr.Appending())
	assert.Equal(t, model.Unbounded, f.eng.lastT1)
	require.Len(t, f.eng.last.CaptureTracks, 2)
	assert.Equal(t, f.eng.last.CaptureTracks[0].ID, f.eng.last.CaptureTracks[1].GroupID)
	assert.Equal(t, []string{"record-start"}, f.autoSaver.all())

	// 录音期间新轨道只在暂存表中
	assert.Equal(t, 1, f.list.Len())
	assert.True(t, f.list.HasPending())

	for i := 0; i < 3; i++ {
		require.True(t, f.eng.Process(100))
	}
	require.NoError(t, f.mgr.Stop(true))

	all := f.list.All()
	require.Len(t, all, 3)
	assert.Equal(t, "Audio Track_2", all[1].Name)
	assert.Equal(t, "Audio Track_3", all[2].Name)
	assert.Equal(t, 300, all[1].SampleCount())
	assert.Equal(t, 300, all[2].SampleCount())
	assert.False(t, f.list.HasPending())

	// 历史记录在空闲时写入
	desc, _ := f.hist.Current()
	assert.NotEqual(t, "Recorded Audio", desc)
	f.drain()
	desc, short := f.hist.Current()
	assert.Equal(t, "Recorded Audio", desc)
	assert.Equal(t, "Record", short)
	assert.Equal(t, 2, f.hist.Depth())
	assert.Equal(t, []string{"record-start", "record-stop"}, f.autoSaver.all())
	assert.Equal(t, 6, f.disk.blocks)
	assert.GreaterOrEqual(t, f.disk.flushes, 2)
}

func TestRecordManyChannelsMinimizesTracks(t *testing.T) {
	f := newFixture(t, "p1")
	f.setPrefs(func(p *config.TransportPrefs) { p.RecordChannels = 4 })
	f.view.SetSelection(model.NewSelectedRegion(0.0016, 0.0016))

	require.NoError(t, f.mgr.OnRecord(true))
	require.Len(t, f.eng.last.CaptureTracks, 4)
	for _, track := range f.eng.last.CaptureTracks {
		assert.True(t, track.Minimized)
	}
	// 起点按采样率量化
	assert.Equal(t, 0.002, f.eng.lastT0)
}

func TestAbortRecordingRestoresTracks(t *testing.T) {
	mono := waveGroup("mono", 1, 1, true)
	f := newFixture(t, "p1", mono...)
	f.setPrefs(func(p *config.TransportPrefs) { p.RecordChannels = 1 })
	before := f.list.Snapshot()

	require.NoError(t, f.mgr.OnRecord(false))
	assert.True(t, f.mgr.Appending())
	require.True(t, f.eng.Process(100))
	f.eng.InjectDropout(1.0, 0.01)
	require.True(t, f.eng.Process(100))

	require.NoError(t, f.mgr.AbortRecording())
	f.drain()

	assert.True(t, tracks.EqualTracks(before, f.list.Snapshot()))
	assert.Equal(t, 1000, mono[0].SampleCount())
	assert.Equal(t, 1, f.hist.Depth())
	assert.False(t, f.mgr.IsTimerRecordCancelled())
	assert.Empty(t, f.list.OfKind(model.TrackKindLabel, false), "no dropout labels for cancelled recording")
	f.notifier.AssertNotCalled(t, "ShowWarning", mock.Anything, mock.Anything)
}

func TestAbortRecordingRefusedWhenNotRecording(t *testing.T) {
	f := newFixture(t, "p1", waveGroup("a", 1, 1, true)...)
	assert.ErrorIs(t, f.mgr.AbortRecording(), ErrRefused)

	_, err := f.mgr.PlayPlayRegion(model.NewSelectedRegion(0, 1), f.mgr.DefaultPlayOptions(), NormalPlay, false, false)
	require.NoError(t, err)
	assert.ErrorIs(t, f.mgr.AbortRecording(), ErrRefused)
	assert.False(t, f.mgr.IsTimerRecordCancelled())
}

func TestAppendRecordingPadsSilence(t *testing.T) {
	mono := waveGroup("mono", 1, 1, true)
	f := newFixture(t, "p1", mono...)
	f.setPrefs(func(p *config.TransportPrefs) { p.RecordChannels = 1 })
	f.view.SetSelection(model.NewSelectedRegion(2, 2))

	require.NoError(t, f.mgr.OnRecord(false))
	assert.Equal(t, 2.0, f.eng.lastT0)
	assert.Equal(t, model.Unbounded, f.eng.lastT1)
	require.Len(t, f.eng.last.CaptureTracks, 1)
	capture := f.eng.last.CaptureTracks[0]
	assert.NotSame(t, mono[0], capture)
	assert.Equal(t, mono[0].ID, capture.ID)
	// 录音轨道不参与回放
	assert.Empty(t, f.eng.last.PlaybackTracks)

	require.True(t, f.eng.Process(100))
	require.True(t, f.eng.Process(100))
	require.NoError(t, f.mgr.Stop(true))
	f.drain()

	all := f.list.All()
	require.Len(t, all, 1)
	assert.Equal(t, 2200, all[0].SampleCount())
	assert.InDelta(t, 2.2, all[0].EndTime(), 1e-9)
	assert.Equal(t, 1000, mono[0].SampleCount(), "original track is replaced, not modified")
}

func TestAppendRecordingEndsAtSelection(t *testing.T) {
	mono := waveGroup("mono", 1, 1, true)
	f := newFixture(t, "p1", mono...)
	f.setPrefs(func(p *config.TransportPrefs) { p.RecordChannels = 1 })

	f.view.SetSelection(model.NewSelectedRegion(2, 3))
	require.NoError(t, f.mgr.OnRecord(false))
	assert.Equal(t, 2.0, f.eng.lastT0)
	assert.Equal(t, 3.0, f.eng.lastT1)
	require.NoError(t, f.mgr.Stop(true))
	f.drain()

	// 上一次补齐的静音让音频延伸到 2 秒；选区起点在音频内部时从末尾开始且不限时长
	f.view.SetSelection(model.NewSelectedRegion(0.5, 3))
	require.NoError(t, f.mgr.OnRecord(false))
	assert.Equal(t, 2.0, f.eng.lastT0)
	assert.Equal(t, model.Unbounded, f.eng.lastT1)
}

func TestRecordFallsBackToNewTracks(t *testing.T) {
	// 只有单声道轨道，需要两个声道
	f := newFixture(t, "p1", waveGroup("mono", 1, 1, true)...)

	require.NoError(t, f.mgr.OnRecord(false))
	require.Len(t, f.eng.last.CaptureTracks, 2)
	for _, c := range f.eng.last.CaptureTracks {
		assert.Nil(t, f.list.Get(c.ID))
	}
	assert.Equal(t, 1.0, f.eng.lastT0)
}

func TestRecordDuplexPlayback(t *testing.T) {
	mono := waveGroup("mono", 1, 1, true)
	stereo := waveGroup("stereo", 2, 1, false)
	f := newFixture(t, "p1", append(mono, stereo...)...)
	f.setPrefs(func(p *config.TransportPrefs) { p.RecordChannels = 1 })

	require.NoError(t, f.mgr.OnRecord(false))
	assert.Equal(t, ids(stereo), ids(f.eng.last.PlaybackTracks))
	require.NoError(t, f.mgr.Stop(true))
	f.drain()

	f.setPrefs(func(p *config.TransportPrefs) { p.Duplex = false })
	require.NoError(t, f.mgr.OnRecord(false))
	assert.Empty(t, f.eng.last.PlaybackTracks)
}

func TestDoRecordPreroll(t *testing.T) {
	mono := waveGroup("mono", 1, 1, true)
	f := newFixture(t, "p1", mono...)

	tt := engine.TransportTracks{
		PlaybackTracks: mono,
		CaptureTracks:  mono,
	}
	require.NoError(t, f.mgr.DoRecord(tt, 0.5, model.Unbounded, false, f.mgr.DefaultPlayOptions()))

	require.Len(t, f.eng.last.PrerollTracks, 1)
	assert.Same(t, mono[0], f.eng.last.PrerollTracks[0])
	require.Len(t, f.eng.last.CaptureTracks, 1)
	assert.NotSame(t, mono[0], f.eng.last.CaptureTracks[0])
}

func TestRecordStartFailure(t *testing.T) {
	f := newFixture(t, "p1", waveGroup("mono", 1, 1, true)...)
	f.setPrefs(func(p *config.TransportPrefs) { p.RecordChannels = 1 })
	f.eng.InjectFailure("boom")

	err := f.mgr.OnRecord(false)
	require.ErrorIs(t, err, ErrRecordStartFailed)
	assert.False(t, f.list.HasPending())
	assert.False(t, f.mgr.Appending())
	assert.Equal(t, engine.NoToken, f.mgr.Token())

	f.notifier.On("ShowError", "Error", "Error opening recording device.\nError code: boom", "Error_opening_sound_device").Once()
	f.drain()
	f.notifier.AssertExpectations(t)
}

func TestRecordWithoutInputDevice(t *testing.T) {
	eng := &spyEngine{SimEngine: engine.NewSimEngine(engine.Config{InputChannels: 0, BlockFrames: 100})}
	f := newFixtureWithEngine(t, eng, "p1")
	f.notifier.On("ShowError", mock.Anything, mock.Anything, mock.Anything).Maybe()

	assert.ErrorIs(t, f.mgr.OnRecord(true), ErrRecordStartFailed)
	assert.False(t, f.list.HasPending())
}

func TestRecordingDropoutsAddLabels(t *testing.T) {
	f := newFixture(t, "p1")
	f.notifier.On("ShowWarning", "DropoutDetected", dropoutWarning).Once()

	require.NoError(t, f.mgr.OnRecord(true))
	require.True(t, f.eng.Process(100))
	f.eng.InjectDropout(0.1, 0.05)
	f.eng.InjectDropout(0.3, 0.02)
	require.NoError(t, f.mgr.Stop(true))
	f.drain()

	labelTracks := f.list.OfKind(model.TrackKindLabel, false)
	require.Len(t, labelTracks, 1)
	assert.Equal(t, "Dropouts", labelTracks[0].Name)
	labels := labelTracks[0].Labels()
	require.Len(t, labels, 2)
	assert.Equal(t, "1", labels[0].Text)
	assert.Equal(t, "2", labels[1].Text)
	assert.Equal(t, 0.1, labels[0].Region.T0)
	assert.InDelta(t, 0.15, labels[0].Region.T1, 1e-9)
	f.notifier.AssertExpectations(t)
}

func TestRecordRefusedWhileBusy(t *testing.T) {
	f := newFixture(t, "p1", waveGroup("a", 1, 2, true)...)
	_, err := f.mgr.PlayPlayRegion(model.NewSelectedRegion(0, 1), f.mgr.DefaultPlayOptions(), NormalPlay, false, false)
	require.NoError(t, err)

	assert.ErrorIs(t, f.mgr.OnRecord(true), ErrBusy)
	assert.False(t, f.list.HasPending())
}

// stallingCommit 让提交回调停住，模拟引擎自行收尾时用户按下停止
type stallingCommit struct {
	engine.Listener
	entered chan struct{}
	release chan struct{}
}

func (l *stallingCommit) OnCommitRecording() {
	close(l.entered)
	<-l.release
	l.Listener.OnCommitRecording()
}

func TestStopWhileEngineFinishesRecordingKeepsHistory(t *testing.T) {
	eng := &spyEngine{SimEngine: engine.NewSimEngine(engine.Config{InputChannels: 2, BlockFrames: 10, Realtime: true})}
	f := newFixtureWithEngine(t, eng, "p1")

	l := &stallingCommit{Listener: f.mgr.Listener(), entered: make(chan struct{}), release: make(chan struct{})}
	opts := f.mgr.DefaultPlayOptions()
	opts.Listener = l
	require.NoError(t, f.mgr.DoRecord(engine.TransportTracks{}, 0, 0.05, true, opts))

	select {
	case <-l.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("recording did not finish on its own")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- f.mgr.Stop(true) }()
	assert.Never(t, func() bool { return len(stopped) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	close(l.release)
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	// Stop 返回时录音已经提交
	assert.Equal(t, 2, f.list.Len())
	assert.False(t, f.list.HasPending())

	f.drain()
	desc, _ := f.hist.Current()
	assert.Equal(t, "Recorded Audio", desc)
	assert.Equal(t, 2, f.hist.Depth())
	assert.False(t, f.mgr.IsTimerRecordCancelled())
}
