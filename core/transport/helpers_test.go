package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"AudioDeck/config"
	"AudioDeck/core/engine"
	"AudioDeck/core/history"
	"AudioDeck/core/tracks"
	"AudioDeck/model"
)

const testRate = 1000.0

// spyEngine 记录对引擎的控制调用
type spyEngine struct {
	*engine.SimEngine

	mu       sync.Mutex
	starts   int
	stops    int
	pauses   int
	last     engine.TransportTracks
	lastT0   float64
	lastT1   float64
	lastOpts engine.StreamOptions
}

func newSpyEngine() *spyEngine {
	return &spyEngine{SimEngine: engine.NewSimEngine(engine.Config{InputChannels: 2, BlockFrames: 100})}
}

func (s *spyEngine) StartStream(tt engine.TransportTracks, t0, t1 float64, opts engine.StreamOptions) engine.Token {
	s.mu.Lock()
	s.starts++
	s.last, s.lastT0, s.lastT1, s.lastOpts = tt, t0, t1, opts
	s.mu.Unlock()
	return s.SimEngine.StartStream(tt, t0, t1, opts)
}

func (s *spyEngine) StopStream() {
	s.mu.Lock()
	s.stops++
	s.mu.Unlock()
	s.SimEngine.StopStream()
}

func (s *spyEngine) SetPaused(paused bool) {
	s.mu.Lock()
	s.pauses++
	s.mu.Unlock()
	s.SimEngine.SetPaused(paused)
}

func (s *spyEngine) calls() (starts, stops, pauses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops, s.pauses
}

type viewState struct {
	mu   sync.Mutex
	info model.ViewInfo
}

func (v *viewState) Selection() model.SelectedRegion {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.info.Selection
}

func (v *viewState) SetSelection(r model.SelectedRegion) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.info.Selection = r
}

func (v *viewState) PlayRegion() model.PlayRegion {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.info.PlayRegion
}

type mockNotifier struct {
	mock.Mock
}

func (n *mockNotifier) ShowError(title, message, helpPage string) {
	n.Called(title, message, helpPage)
}

func (n *mockNotifier) ShowWarning(key, message string) {
	n.Called(key, message)
}

func (n *mockNotifier) SetStatus(field, text string) {
	n.Called(field, text)
}

type mockScrubber struct {
	mock.Mock
}

func (s *mockScrubber) StopScrubbing()        { s.Called() }
func (s *mockScrubber) HasMark() bool         { return s.Called().Bool(0) }
func (s *mockScrubber) IsSpeedPlaying() bool  { return s.Called().Bool(0) }
func (s *mockScrubber) WasSpeedPlaying() bool { return s.Called().Bool(0) }
func (s *mockScrubber) Pause(paused bool)     { s.Called(paused) }

type countingAutoSaver struct {
	mu      sync.Mutex
	reasons []string
}

func (a *countingAutoSaver) RequestAutoSave(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reasons = append(a.reasons, reason)
}

func (a *countingAutoSaver) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.reasons...)
}

type memDiskCache struct {
	mu      sync.Mutex
	blocks  int
	flushes int
}

func (c *memDiskCache) AppendBlockLog(log engine.BlockLog) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks += len(log.Blocks)
	return nil
}

func (c *memDiskCache) WriteCacheToDisk() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushes++
	return nil
}

type fixture struct {
	eng       *spyEngine
	list      *tracks.TrackList
	factory   *tracks.Factory
	view      *viewState
	hist      *history.Manager
	prefs     *config.Preferences
	notifier  *mockNotifier
	autoSaver *countingAutoSaver
	disk      *memDiskCache
	playMeter *engine.PeakMeter
	capMeter  *engine.PeakMeter
	mgr       *Manager
}

func testFactory() *tracks.Factory {
	return tracks.NewFactory(func() float64 { return testRate })
}

// waveGroup channels 个声道、seconds 秒的音频轨组
func waveGroup(name string, channels int, seconds float64, selected bool) []*model.Track {
	group := testFactory().NewWaveGroup(name, channels, 0, seconds)
	for _, t := range group {
		t.Selected = selected
	}
	return group
}

func newFixture(t *testing.T, owner string, trackList ...*model.Track) *fixture {
	return newFixtureWithEngine(t, newSpyEngine(), owner, trackList...)
}

func newFixtureWithEngine(t *testing.T, eng *spyEngine, owner string, trackList ...*model.Track) *fixture {
	t.Helper()

	prefs := config.DefaultTransportPrefs()
	prefs.ProjectRate = testRate
	f := &fixture{
		eng:       eng,
		list:      tracks.NewTrackList(trackList...),
		factory:   testFactory(),
		view:      &viewState{},
		prefs:     config.NewPreferences(prefs),
		notifier:  &mockNotifier{},
		autoSaver: &countingAutoSaver{},
		disk:      &memDiskCache{},
		playMeter: &engine.PeakMeter{},
		capMeter:  &engine.PeakMeter{},
	}
	f.hist = history.NewManager(owner, f.list, nil)
	f.notifier.On("SetStatus", mock.Anything, mock.Anything).Maybe()

	f.mgr = NewManager(Deps{
		Owner:         engine.Owner(owner),
		Engine:        eng,
		Tracks:        f.list,
		Factory:       f.factory,
		View:          f.view,
		History:       f.hist,
		Prefs:         f.prefs,
		Notifier:      f.notifier,
		AutoSaver:     f.autoSaver,
		DiskCache:     f.disk,
		PlaybackMeter: f.playMeter,
		CaptureMeter:  f.capMeter,
		Clock: func() time.Time {
			return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
		},
	})
	t.Cleanup(func() {
		f.eng.SimEngine.StopStream()
	})
	return f
}

func (f *fixture) setPrefs(fn func(*config.TransportPrefs)) {
	f.prefs.Update(fn)
}

func (f *fixture) drain() {
	f.mgr.Idle().Drain(0)
}
