package transport

import (
	"strconv"

	"AudioDeck/core/engine"
	"AudioDeck/logger"
	"AudioDeck/model"
)

// listener 把引擎回调转给 Manager
type listener struct {
	m *Manager
}

func (l *listener) OnAudioIORate(rate int)               { l.m.OnRateChanged(rate) }
func (l *listener) OnAudioIOStartRecording()             { l.m.OnRecordingStarted() }
func (l *listener) OnAudioIOStopRecording()              { l.m.OnRecordingStopped() }
func (l *listener) OnAudioIONewBlocks(b engine.BlockLog) { l.m.OnNewBufferedData(b) }
func (l *listener) OnCommitRecording()                   { l.m.OnRecordingCommit() }
func (l *listener) OnSoundActivationThreshold()          { l.m.OnSoundActivationThreshold() }

// 以下处理函数可能在引擎 goroutine 上执行，不得阻塞

// OnRateChanged 记录引擎实际采样率并更新状态栏
func (m *Manager) OnRateChanged(rate int) {
	m.mu.Lock()
	m.displayedRate = rate
	m.mu.Unlock()

	text := FormatRate(rate)
	m.idle.CallAfter(func() {
		m.notifier.SetStatus(RateStatusField, text)
	})
}

// OnRecordingStarted 录音开始前自动保存，新轨道此时还是空的
func (m *Manager) OnRecordingStarted() {
	m.autoSaver.RequestAutoSave("record-start")
}

// OnNewBufferedData 新采样块写入自动保存日志；失败时录音继续
func (m *Manager) OnNewBufferedData(log engine.BlockLog) {
	if err := m.diskCache.AppendBlockLog(log); err != nil {
		logger.Warn("append block log failed",
			logger.String("project", string(m.owner)),
			logger.Int("seq", log.Seq),
			logger.ErrorField(err))
	}
}

// OnRecordingCommit 引擎确认录音流已停止并刷新，提交或丢弃暂存的轨道
func (m *Manager) OnRecordingCommit() {
	m.mu.Lock()
	m.commitToken = m.token
	m.mu.Unlock()

	if m.IsTimerRecordCancelled() {
		n := m.tracks.ClearPendingTracks()
		logger.Info("recording discarded", logger.String("project", string(m.owner)), logger.Int("pending", n))
		return
	}
	n := m.tracks.ApplyPendingTracks()
	logger.Info("recording committed", logger.String("project", string(m.owner)), logger.Int("tracks", n))
}

// OnRecordingStopped 录音结束；历史记录、丢失标记和自动保存延后到控制线程执行
// 使用提交时记下的流标识，Stop 可能已经清除了 token
func (m *Manager) OnRecordingStopped() {
	m.mu.Lock()
	token := m.commitToken
	if token == engine.NoToken {
		token = m.token
	}
	m.commitToken = engine.NoToken
	m.mu.Unlock()
	intervals := m.engine.LostCaptureIntervals()
	m.idle.CallAfter(func() {
		m.finishRecording(token, intervals)
	})
}

func (m *Manager) finishRecording(token engine.Token, intervals []model.Interval) {
	// 只有真正录音（不是监听）时才记入历史
	if token > 0 {
		cancelled := m.IsTimerRecordCancelled()

		if len(intervals) > 0 && !cancelled {
			m.addDropoutLabels(intervals)
			dropoutsTotal.Add(float64(len(intervals)))
			m.notifier.ShowWarning(dropoutWarningKey, dropoutWarning)
		}

		if cancelled {
			m.history.RollbackState()
			m.ResetTimerRecordCancelled()
			recordingsFinished.WithLabelValues("cancelled").Inc()
		} else {
			m.history.PushState(recordedAudioDesc, recordedAudioShort)
			recordingsFinished.WithLabelValues("committed").Inc()
		}
	}

	if err := m.diskCache.WriteCacheToDisk(); err != nil {
		logger.Warn("flush capture cache failed", logger.String("project", string(m.owner)), logger.ErrorField(err))
	}
	m.autoSaver.RequestAutoSave("record-stop")
	m.publishState()
}

// addDropoutLabels 为丢失的录音区间新建标签轨
func (m *Manager) addDropoutLabels(intervals []model.Interval) {
	track := m.factory.NewLabelTrack()
	track.Name = dropoutTrackName
	for i, iv := range intervals {
		track.AddLabel(model.NewSelectedRegion(iv.Start, iv.Start+iv.Duration), strconv.Itoa(i+1))
	}
	m.tracks.Add(track)

	logger.Warn("recorded audio lost",
		logger.String("project", string(m.owner)),
		logger.Int("intervals", len(intervals)))
}

// OnSoundActivationThreshold 声控触发时暂停，仅当本项目持有引擎
func (m *Manager) OnSoundActivationThreshold() {
	if m.engine.GetOwningProject() == m.owner {
		m.idle.CallAfter(m.Pause)
	}
}
