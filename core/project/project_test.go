package project

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AudioDeck/config"
	"AudioDeck/core/engine"
	"AudioDeck/core/transport"
	"AudioDeck/model"
)

type recordingStore struct {
	mu      sync.Mutex
	reasons []string
	last    model.ProjectSnapshot
}

func (s *recordingStore) RequestAutoSave(projectID, reason string, snapshot model.ProjectSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasons = append(s.reasons, reason)
	s.last = snapshot
}

func (s *recordingStore) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reasons...)
}

type statePublisher struct {
	mu     sync.Mutex
	states []model.TransportSnapshot
}

func (p *statePublisher) PublishState(s model.TransportSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, s)
}

func (p *statePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.states)
}

func newTestRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	if opts.Engine == nil {
		opts.Engine = engine.NewSimEngine(engine.Config{InputChannels: 2, BlockFrames: 10, Realtime: true})
	}
	if opts.Prefs == nil {
		prefs := config.DefaultTransportPrefs()
		prefs.ProjectRate = 1000
		opts.Prefs = config.NewPreferences(prefs)
	}
	opts.PollInterval = 5 * time.Millisecond
	r := NewRegistry(ctx, opts)
	t.Cleanup(func() {
		cancel()
		r.Wait()
	})
	return r
}

func addWave(t *testing.T, p *Project, seconds float64) {
	t.Helper()
	err := p.Do(context.Background(), func(*transport.Manager) error {
		_, err := p.AddTracks(model.CreateTrackRequest{Kind: model.TrackKindWave, Duration: seconds, Selected: true})
		return err
	})
	require.NoError(t, err)
}

func TestRegistryCreateAndLookup(t *testing.T) {
	r := newTestRegistry(t, Options{})
	a := r.Create("first")
	b := r.Create("")

	got, err := r.Get(a.ID())
	require.NoError(t, err)
	assert.Same(t, a, got)
	assert.Equal(t, "Untitled", b.Name())
	assert.Equal(t, []*Project{a, b}, r.List())

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddTracks(t *testing.T) {
	r := newTestRegistry(t, Options{})
	p := r.Create("p")

	var created []*model.Track
	err := p.Do(context.Background(), func(*transport.Manager) error {
		var err error
		created, err = p.AddTracks(model.CreateTrackRequest{Channels: 2, Duration: 0.5})
		return err
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "Audio Track", created[0].Name)
	assert.Equal(t, created[0].ID, created[1].GroupID)
	assert.Equal(t, 500, created[0].SampleCount())
	assert.Equal(t, 2, p.History().Depth())

	err = p.Do(context.Background(), func(*transport.Manager) error {
		if _, err := p.AddTracks(model.CreateTrackRequest{Kind: model.TrackKindTime}); err != nil {
			return err
		}
		_, err := p.AddTracks(model.CreateTrackRequest{Kind: model.TrackKindTime})
		return err
	})
	assert.Error(t, err, "only one time track")

	err = p.Do(context.Background(), func(*transport.Manager) error {
		_, err := p.AddTracks(model.CreateTrackRequest{Kind: "video"})
		return err
	})
	assert.Error(t, err)
	assert.Equal(t, 3, p.Info().TrackCount)
}

func TestPlaybackEndsAndPollCleansUp(t *testing.T) {
	pub := &statePublisher{}
	r := newTestRegistry(t, Options{Publishers: []transport.StatePublisher{pub}})
	p := r.Create("p")
	addWave(t, p, 0.1)

	err := p.Do(context.Background(), func(m *transport.Manager) error {
		return m.PlayCurrentRegion(false, false)
	})
	require.NoError(t, err)
	assert.Equal(t, p.ID(), r.ActiveOwner())

	assert.Eventually(t, func() bool {
		return p.Transport().Token() == engine.NoToken
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, r.ActiveOwner())
	assert.Greater(t, pub.count(), 0)
}

func TestProjectsShareEngine(t *testing.T) {
	r := newTestRegistry(t, Options{})
	a := r.Create("a")
	b := r.Create("b")
	addWave(t, a, 5)
	addWave(t, b, 5)

	require.NoError(t, a.Do(context.Background(), func(m *transport.Manager) error {
		return m.PlayCurrentRegion(true, false)
	}))

	err := b.Do(context.Background(), func(m *transport.Manager) error {
		return m.Stop(true)
	})
	assert.ErrorIs(t, err, transport.ErrRefused)
	assert.True(t, a.Transport().Playing())
	assert.True(t, a.Transport().Looping())

	require.NoError(t, a.Do(context.Background(), func(m *transport.Manager) error {
		return m.Stop(true)
	}))
	assert.False(t, a.Transport().Playing())
}

func TestRecordingAutoSaves(t *testing.T) {
	store := &recordingStore{}
	r := newTestRegistry(t, Options{AutoSaves: store})
	p := r.Create("p")

	require.NoError(t, p.Do(context.Background(), func(m *transport.Manager) error {
		return m.OnRecord(true)
	}))
	assert.True(t, p.Transport().Recording())
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, p.Do(context.Background(), func(m *transport.Manager) error {
		return m.Stop(true)
	}))

	assert.Eventually(t, func() bool {
		reasons := store.all()
		return len(reasons) == 2 && reasons[1] == "record-stop"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "record-start", store.all()[0])

	desc, _ := p.History().Current()
	assert.Equal(t, "Recorded Audio", desc)
	assert.Len(t, p.Tracks().All(), 2)
	assert.Greater(t, p.Tracks().All()[0].SampleCount(), 0)
}

func TestDoAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRegistry(ctx, Options{
		Engine: engine.NewSimEngine(engine.Config{InputChannels: 2, BlockFrames: 10}),
	})
	p := r.Create("p")
	cancel()
	r.Wait()

	err := p.Do(context.Background(), func(*transport.Manager) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestShutdownStopsOwnStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eng := engine.NewSimEngine(engine.Config{InputChannels: 2, BlockFrames: 10, Realtime: true})
	prefs := config.DefaultTransportPrefs()
	prefs.ProjectRate = 1000
	r := NewRegistry(ctx, Options{Engine: eng, Prefs: config.NewPreferences(prefs)})
	p := r.Create("p")
	addWave(t, p, 10)

	require.NoError(t, p.Do(context.Background(), func(m *transport.Manager) error {
		return m.PlayCurrentRegion(false, false)
	}))
	require.True(t, eng.IsBusy())

	cancel()
	r.Wait()
	assert.False(t, eng.IsBusy())
}
