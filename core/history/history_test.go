package history

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AudioDeck/core/tracks"
	"AudioDeck/model"
)

type memStore struct {
	mu      sync.Mutex
	records []*model.HistoryRecord
	err     error
}

func (s *memStore) Append(ctx context.Context, r *model.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, r)
	return nil
}

func TestPushAndModify(t *testing.T) {
	list := tracks.NewTrackList()
	store := &memStore{}
	m := NewManager("p1", list, store)
	assert.Equal(t, 1, m.Depth())

	list.Add(model.NewWaveTrack("a", 1000))
	m.PushState("Recorded Audio", "Record")
	assert.Equal(t, 2, m.Depth())
	desc, short := m.Current()
	assert.Equal(t, "Recorded Audio", desc)
	assert.Equal(t, "Record", short)

	saves := 0
	m.SetAutoSaveHook(func() { saves++ })
	m.ModifyState(false)
	m.ModifyState(true)
	assert.Equal(t, 1, saves)
	assert.Equal(t, 2, m.Depth())

	require.Len(t, store.records, 3)
	assert.Equal(t, model.HistoryKindPush, store.records[0].Kind)
	assert.Equal(t, int64(1), store.records[0].Seq)
	assert.Equal(t, 1, store.records[0].TrackCount)
	assert.Equal(t, model.HistoryKindModify, store.records[2].Kind)
	assert.Equal(t, int64(3), store.records[2].Seq)
	assert.Equal(t, "p1", store.records[2].ProjectID)
}

func TestRollbackRestoresTop(t *testing.T) {
	list := tracks.NewTrackList()
	m := NewManager("p1", list, nil)
	before := list.Snapshot()

	list.Add(model.NewWaveTrack("stray", 1000))
	m.RollbackState()
	assert.True(t, tracks.EqualTracks(before, list.Snapshot()))
	assert.Equal(t, 1, m.Depth())
}

func TestStoreFailureIsNotFatal(t *testing.T) {
	list := tracks.NewTrackList()
	m := NewManager("p1", list, &memStore{err: errors.New("db down")})
	m.PushState("Added track", "Add Track")
	assert.Equal(t, 2, m.Depth())
}
