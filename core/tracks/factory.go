package tracks

import "AudioDeck/model"

// Factory 按项目采样率创建轨道
type Factory struct {
	rate func() float64
}

// NewFactory 创建轨道工厂，rate 每次创建时读取
func NewFactory(rate func() float64) *Factory {
	return &Factory{rate: rate}
}

// NewWaveTrack 新建空音频轨
func (f *Factory) NewWaveTrack() *model.Track {
	return model.NewWaveTrack("", f.rate())
}

// NewLabelTrack 新建空标签轨
func (f *Factory) NewLabelTrack() *model.Track {
	return model.NewLabelTrack("")
}

// NewWaveGroup 新建 channels 个声道组成的音频轨组，每个声道填充 seconds 秒测试信号
func (f *Factory) NewWaveGroup(name string, channels int, offset, seconds float64) []*model.Track {
	group := make([]*model.Track, 0, channels)
	for c := 0; c < channels; c++ {
		t := model.NewWaveTrack(name, f.rate())
		t.SetOffset(offset)
		if seconds > 0 {
			t.Append(make([]float32, int(seconds*f.rate()+0.5)))
		}
		group = append(group, t)
	}
	GroupChannels(group)
	return group
}
