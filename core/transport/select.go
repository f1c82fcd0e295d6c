package transport

import "math"

// DoPlayStopSelect 流（或拖动）正在进行时按播放头位置修改选区并返回 true，调用方随后停止
// click 与 shift 对应鼠标点击和 Shift 键
func (m *Manager) DoPlayStopSelect(click, shift bool) bool {
	token := m.Token()
	if !m.scrubber.HasMark() && !m.engine.IsStreamActiveToken(token) {
		return false
	}

	t := m.engine.GetStreamTime()
	sel := m.view.Selection()
	switch {
	case click && m.scrubber.WasSpeedPlaying():
		// 变速播放停止时不改选区；此时可能已经停了，所以看 WasSpeedPlaying
	case shift && click:
		// 像在播放头 shift+点击 一样扩展或收缩选区
		t0, t1 := sel.T0, sel.T1
		switch {
		case t < t0:
			t0 = t
		case t > t1:
			t1 = t
		case math.Abs(t0-t) < math.Abs(t1-t):
			t0 = t
		default:
			t1 = t
		}
		sel.SetTimes(t0, t1)
	case click:
		t = math.Max(t, 0)
		sel.SetTimes(t, t)
	default:
		// 只改起点，越过终点时收缩为一个点
		sel.SetT0(t, false)
	}

	m.view.SetSelection(sel)
	m.history.ModifyState(false)
	return true
}

// PlayStopSelect 正在播放时停止并把光标放到播放头，空闲时播放当前区间
func (m *Manager) PlayStopSelect() error {
	if m.DoPlayStopSelect(false, false) {
		return m.Stop(true)
	}
	if m.engine.IsBusy() {
		return m.refuse("play-stop-select", ErrBusy)
	}
	return m.PlayCurrentRegion(false, false)
}
