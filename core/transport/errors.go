package transport

import "errors"

var (
	// ErrRefused 本项目不能控制当前音频流
	ErrRefused = errors.New("transport: audio stream owned by another project")
	// ErrBusy 引擎正忙
	ErrBusy = errors.New("transport: audio engine busy")
	// ErrNoAudioTracks 没有可播放的轨道
	ErrNoAudioTracks = errors.New("transport: no audio tracks")
	// ErrNothingToPlay 解析后的播放区间为空
	ErrNothingToPlay = errors.New("transport: nothing to play")
	// ErrCutPreviewEmptyRange 剪切预览需要非空区间
	ErrCutPreviewEmptyRange = errors.New("transport: cut preview needs a non-empty range")
	// ErrCutPreviewUnavailable 没有选中的可播放轨道，无法生成剪切预览
	ErrCutPreviewUnavailable = errors.New("transport: cannot create cut preview tracks")
	// ErrStreamStartFailed 播放流启动失败
	ErrStreamStartFailed = errors.New("transport: error opening sound device")
	// ErrRecordStartFailed 录音流启动失败
	ErrRecordStartFailed = errors.New("transport: error opening recording device")
)

// IsRefusal 判断是否为静默拒绝（前置条件不满足，不是错误）
func IsRefusal(err error) bool {
	return errors.Is(err, ErrRefused) || errors.Is(err, ErrBusy) ||
		errors.Is(err, ErrCutPreviewEmptyRange)
}
