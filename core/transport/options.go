package transport

import "fmt"

// PlayMode 播放模式，一次会话只有一种
type PlayMode int

const (
	NormalPlay PlayMode = iota
	LoopedPlay
	CutPreviewPlay
)

func (m PlayMode) String() string {
	switch m {
	case NormalPlay:
		return "normal"
	case LoopedPlay:
		return "looped"
	case CutPreviewPlay:
		return "cutPreview"
	}
	return fmt.Sprintf("PlayMode(%d)", int(m))
}

// ParsePlayMode 解析播放模式，空字符串为 normal
func ParsePlayMode(s string) (PlayMode, error) {
	switch s {
	case "", "normal":
		return NormalPlay, nil
	case "looped":
		return LoopedPlay, nil
	case "cutPreview":
		return CutPreviewPlay, nil
	}
	return NormalPlay, fmt.Errorf("未知的播放模式: %s", s)
}

// 状态栏字段
const (
	RateStatusField = "rate"
)

const (
	errorTitle           = "Error"
	soundDeviceHelpPage  = "Error_opening_sound_device"
	soundDeviceErrorText = "Error opening sound device.\nTry changing the audio host, playback device and the project sample rate."
	recordErrorFormat    = "Error opening recording device.\nError code: %s"

	dropoutTrackName  = "Dropouts"
	dropoutWarningKey = "DropoutDetected"
	dropoutWarning    = "Recorded audio was lost at the labeled locations. Possible causes:\n\n" +
		"Other applications are competing with this program for processor time\n\n" +
		"You are saving directly to a slow external storage device\n"

	recordedAudioDesc  = "Recorded Audio"
	recordedAudioShort = "Record"
)

// FormatRate 状态栏中的采样率文本，rate <= 0 时清空
func FormatRate(rate int) string {
	if rate > 0 {
		return fmt.Sprintf("Actual Rate: %d", rate)
	}
	return ""
}
