package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AudioDeck/model"
)

func startPlaying(t *testing.T, f *fixture) {
	t.Helper()
	_, err := f.mgr.PlayPlayRegion(model.NewSelectedRegion(0, 4), f.mgr.DefaultPlayOptions(), NormalPlay, false, false)
	require.NoError(t, err)
}

func TestDoPlayStopSelectIdle(t *testing.T) {
	f := newFixture(t, "p1", waveGroup("a", 1, 4, true)...)
	f.view.SetSelection(model.NewSelectedRegion(1, 2))

	assert.False(t, f.mgr.DoPlayStopSelect(true, false))
	assert.Equal(t, model.NewSelectedRegion(1, 2), f.view.Selection())
}

func TestDoPlayStopSelectRules(t *testing.T) {
	tests := []struct {
		name         string
		at           float64
		click, shift bool
		want         model.SelectedRegion
	}{
		{name: "click moves cursor", at: 2.5, click: true, want: model.NewSelectedRegion(2.5, 2.5)},
		{name: "shift click extends end", at: 2.5, click: true, shift: true, want: model.NewSelectedRegion(1, 2.5)},
		{name: "shift click extends start", at: 0.5, click: true, shift: true, want: model.NewSelectedRegion(0.5, 2)},
		{name: "shift click moves nearer start", at: 1.2, click: true, shift: true, want: model.NewSelectedRegion(1.2, 2)},
		{name: "shift click moves nearer end", at: 1.8, click: true, shift: true, want: model.NewSelectedRegion(1, 1.8)},
		{name: "default inside keeps end", at: 1.5, want: model.NewSelectedRegion(1.5, 2)},
		{name: "default past end collapses", at: 3, want: model.NewSelectedRegion(3, 3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "p1", waveGroup("a", 1, 4, true)...)
			f.view.SetSelection(model.NewSelectedRegion(1, 2))
			startPlaying(t, f)
			f.eng.SeekStream(tt.at)

			assert.True(t, f.mgr.DoPlayStopSelect(tt.click, tt.shift))
			assert.Equal(t, tt.want, f.view.Selection())
		})
	}
}

func TestDoPlayStopSelectClampsNegativeClick(t *testing.T) {
	f := newFixture(t, "p1", waveGroup("a", 1, 4, true)...)
	startPlaying(t, f)
	f.eng.SeekStream(-0.3)

	assert.True(t, f.mgr.DoPlayStopSelect(true, false))
	assert.Equal(t, model.NewSelectedRegion(0, 0), f.view.Selection())
}

func TestDoPlayStopSelectAfterSpeedPlay(t *testing.T) {
	f := newFixture(t, "p1", waveGroup("a", 1, 4, true)...)
	scrubber := &mockScrubber{}
	scrubber.On("HasMark").Return(true)
	scrubber.On("WasSpeedPlaying").Return(true)
	f.mgr.scrubber = scrubber
	f.view.SetSelection(model.NewSelectedRegion(1, 2))

	// 变速播放可能已经结束，有标记即可
	assert.True(t, f.mgr.DoPlayStopSelect(true, false))
	assert.Equal(t, model.NewSelectedRegion(1, 2), f.view.Selection())
	scrubber.AssertExpectations(t)
}

func TestPlayStopSelectToggles(t *testing.T) {
	f := newFixture(t, "p1", waveGroup("a", 1, 4, true)...)

	require.NoError(t, f.mgr.PlayStopSelect())
	assert.True(t, f.mgr.Playing())

	f.eng.SeekStream(1.25)
	require.NoError(t, f.mgr.PlayStopSelect())
	assert.False(t, f.mgr.Playing())
	// 原来是点选区，起点越过终点后收缩为新的点
	assert.Equal(t, model.NewSelectedRegion(1.25, 1.25), f.view.Selection())
}

func TestPlayStopSelectBusyElsewhere(t *testing.T) {
	shared := newSpyEngine()
	a := newFixtureWithEngine(t, shared, "a", waveGroup("a", 1, 4, true)...)
	b := newFixtureWithEngine(t, shared, "b", waveGroup("b", 1, 4, true)...)
	startPlaying(t, a)

	assert.ErrorIs(t, b.mgr.PlayStopSelect(), ErrBusy)
	assert.True(t, a.mgr.Playing())
}
