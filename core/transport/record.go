package transport

import (
	"fmt"
	"math"

	"AudioDeck/core/engine"
	"AudioDeck/core/tracks"
	"AudioDeck/model"
)

// reinitUpdater 录音期间原轨道的名称等属性可能变化，提交前同步到副本
func reinitUpdater(dst, src *model.Track) {
	dst.Reinit(src)
}

// OnRecord 开始录音
// altAppearance 与偏好 PreferNewTrackRecord 相同时追加到现有轨道，否则录到新轨道
func (m *Manager) OnRecord(altAppearance bool) error {
	prefs := m.transportPrefs()
	appendRecord := altAppearance == prefs.PreferNewTrackRecord

	sel := m.view.Selection()
	t0, t1 := sel.T0, sel.T1
	// 没有时间选区时不限录音时长
	if t1 == t0 {
		t1 = model.Unbounded
	}

	var existing []*model.Track
	if appendRecord {
		// 优先在选中的轨道中找，找不到再在全部轨道中找
		existing = ChooseExistingRecordingTracks(m.tracks, prefs.RecordChannels, true)
		if len(existing) > 0 {
			t0 = math.Max(t0, tracks.MaxEndTime(m.tracks.OfKind(model.TrackKindWave, true)))
		} else {
			existing = ChooseExistingRecordingTracks(m.tracks, prefs.RecordChannels, false)
			// 仍然没有合适的轨道时录到新轨道，但 t0 的选择与此无关
			t0 = math.Max(t0, tracks.MaxEndTime(m.tracks.OfKind(model.TrackKindWave, false)))
		}

		if t0 <= sel.T0 && sel.T1 > sel.T0 {
			t1 = sel.T1
		} else {
			t1 = model.Unbounded
		}
	}

	var tt engine.TransportTracks
	if prefs.Duplex {
		// 录音的轨道不参与回放
		tt = allPlaybackTracks(m.tracks, nil, false, true)
		for _, wt := range existing {
			tt.RemovePlayback(wt)
		}
	}
	tt.CaptureTracks = existing

	return m.DoRecord(tt, t0, t1, altAppearance, m.DefaultPlayOptions())
}

// DoRecord 用给定轨道启动录音；CaptureTracks 为空时录到新建的轨道
// 现有轨道的修改和新轨道都先登记到暂存表，录音正常结束后才提交
func (m *Manager) DoRecord(tt engine.TransportTracks, t0, t1 float64, altAppearance bool, opts engine.StreamOptions) error {
	if !m.CanStop() {
		return m.refuse("record", ErrRefused)
	}
	if m.engine.IsBusy() {
		return m.refuse("record", ErrBusy)
	}
	defer m.publishState()

	m.mu.Lock()
	m.appending = !altAppearance
	m.mu.Unlock()

	prefs := m.transportPrefs()

	transportTracks := tt
	// 录音目标换成暂存副本
	transportTracks.CaptureTracks = nil
	transportTracks.PrerollTracks = nil

	if len(tt.CaptureTracks) > 0 {
		for _, wt := range tt.CaptureTracks {
			endTime := wt.EndTime()

			// 同时回放的轨道记入预卷列表
			if transportTracks.ContainsPlayback(wt) {
				transportTracks.PrerollTracks = append(transportTracks.PrerollTracks, wt)
			}

			pending := m.tracks.RegisterPendingChangedTrack(reinitUpdater, wt)

			// 等于也补齐，保证录音从新片段开始
			if endTime <= t0 {
				pending.InsertSilence(endTime, t0-endTime)
			}
			transportTracks.CaptureTracks = append(transportTracks.CaptureTracks, pending)
		}
		m.tracks.UpdatePendingTracks()
	}

	if len(transportTracks.CaptureTracks) == 0 {
		numTracks := len(m.tracks.Leaders(model.TrackKindWave))
		recordingChannels := prefs.RecordChannels
		if recordingChannels < 1 {
			recordingChannels = 1
		}

		now := m.clock()
		group := make([]*model.Track, 0, recordingChannels)
		for c := 0; c < recordingChannels; c++ {
			newTrack := m.factory.NewWaveTrack()

			// 按新轨道的采样率量化起止时间
			if c == 0 {
				if t0 < model.Unbounded {
					t0 = newTrack.LongSamplesToTime(newTrack.TimeToLongSamples(t0))
				}
				if t1 < model.Unbounded {
					t1 = newTrack.LongSamplesToTime(newTrack.TimeToLongSamples(t1))
				}
			}

			newTrack.SetOffset(t0)
			newTrack.Name = RecordingTrackName(prefs, 1+numTracks+c, now)
			if recordingChannels > 2 {
				newTrack.Minimized = true
			}
			group = append(group, newTrack)
		}
		tracks.GroupChannels(group)
		for _, t := range group {
			m.tracks.RegisterPendingNewTrack(t)
		}
		transportTracks.CaptureTracks = group
	}

	token := m.engine.StartStream(transportTracks, t0, t1, opts)
	observeStart("record", token != engine.FailedToken)

	if token == engine.FailedToken {
		m.CancelRecording()
		m.mu.Lock()
		m.appending = false
		m.mu.Unlock()

		msg := fmt.Sprintf(recordErrorFormat, m.engine.LastErrorString())
		m.idle.CallAfter(func() {
			m.notifier.ShowError(errorTitle, msg, soundDeviceHelpPage)
		})
		return fmt.Errorf("%w: %s", ErrRecordStartFailed, m.engine.LastErrorString())
	}

	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

// CancelRecording 丢弃暂存的轨道修改
func (m *Manager) CancelRecording() {
	m.tracks.ClearPendingTracks()
}

// AbortRecording 取消当前录音并停止；录到的内容被丢弃，历史回滚
func (m *Manager) AbortRecording() error {
	if !m.Recording() {
		return m.refuse("abort", ErrRefused)
	}
	m.SetTimerRecordCancelled()
	return m.Stop(true)
}

// SetTimerRecordCancelled 标记本次录音被取消
func (m *Manager) SetTimerRecordCancelled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timerRecordCancelled = true
}

// ResetTimerRecordCancelled 清除取消标记
func (m *Manager) ResetTimerRecordCancelled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timerRecordCancelled = false
}

// IsTimerRecordCancelled 本次录音是否被取消
func (m *Manager) IsTimerRecordCancelled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timerRecordCancelled
}
