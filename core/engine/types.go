// Package engine 定义音频引擎的对外接口类型，并提供进程内共享的模拟引擎
package engine

import "AudioDeck/model"

// Token 流标识；0 表示启动失败
type Token int

const (
	// FailedToken StartStream 启动失败时的返回值
	FailedToken Token = 0
	// NoToken 项目当前没有持有任何流
	NoToken Token = -1
)

// Owner 流的所有者（项目标识）
type Owner string

// TransportTracks 一次传输会话涉及的轨道
type TransportTracks struct {
	PlaybackTracks []*model.Track
	CaptureTracks  []*model.Track
	MidiTracks     []*model.Track
	// 同时被录音和回放的轨道
	PrerollTracks []*model.Track
}

// ContainsPlayback 判断轨道是否在回放列表中
func (t *TransportTracks) ContainsPlayback(track *model.Track) bool {
	for _, p := range t.PlaybackTracks {
		if p == track {
			return true
		}
	}
	return false
}

// RemovePlayback 从回放列表中移除轨道
func (t *TransportTracks) RemovePlayback(track *model.Track) {
	for i, p := range t.PlaybackTracks {
		if p == track {
			t.PlaybackTracks = append(t.PlaybackTracks[:i:i], t.PlaybackTracks[i+1:]...)
			return
		}
	}
}

// Meter 电平表
type Meter interface {
	Clear()
}

// StreamOptions StartStream 参数
type StreamOptions struct {
	Owner      Owner
	Rate       float64
	PlayLooped bool
	Scrubbing  bool

	// 剪切预览时跳过的间隙
	CutPreviewGapStart float64
	CutPreviewGapLen   float64

	Envelope      *model.Track // 变速轨，可为空
	PlaybackMeter Meter
	CaptureMeter  Meter
	Listener      Listener
}

// Block 一个新写入的采样块
type Block struct {
	TrackID string
	Start   float64
	Rate    float64
	Samples []float32
}

// BlockLog 一次回调中新写入的采样块
type BlockLog struct {
	Owner  Owner
	Seq    int
	Blocks []Block
}

// Listener 引擎生命周期回调；可能在引擎自己的 goroutine 上调用，实现方不得阻塞
type Listener interface {
	OnAudioIORate(rate int)
	OnAudioIOStartRecording()
	OnAudioIOStopRecording()
	OnAudioIONewBlocks(log BlockLog)
	OnCommitRecording()
	OnSoundActivationThreshold()
}
