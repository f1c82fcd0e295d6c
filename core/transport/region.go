package transport

import (
	"math"

	"AudioDeck/model"
)

// RegionRequest 一次播放请求的时间参数
type RegionRequest struct {
	Region         model.SelectedRegion // 请求区间，已排序
	Looped         bool
	Backwards      bool
	PlayWhiteSpace bool // 允许播放到音频结束之后

	Selection  model.SelectedRegion // 当前选区
	TrackStart float64
	TrackEnd   float64
}

// ResolvePlayRegion 把请求转换成交给引擎的区间；倒放时 t0 > t1
// ok 为 false 表示没有可播放的内容
func ResolvePlayRegion(req RegionRequest) (t0, t1 float64, ok bool) {
	t0, t1 = req.Region.T0, req.Region.T1

	if t0 == t1 {
		if req.Looped {
			// 光标在选区内时循环选区，否则循环整个项目
			sel := req.Selection
			if !sel.IsPoint() && sel.Contains(t0) {
				t0, t1 = sel.T0, sel.T1
			} else {
				t0, t1 = req.TrackStart, req.TrackEnd
			}
		} else {
			// 从光标播放到结尾
			t0 = math.Max(req.TrackStart, math.Min(t0, req.TrackEnd))
			t1 = req.TrackEnd
		}
		return t0, t1, t0 != t1
	}

	latestEnd := req.TrackEnd
	if req.PlayWhiteSpace {
		latestEnd = t1
	}
	t0 = math.Max(0, math.Min(t0, latestEnd))
	t1 = math.Max(0, math.Min(t1, latestEnd))
	if req.Backwards {
		t0, t1 = t1, t0
	}
	return t0, t1, t0 != t1
}

// CutPreviewBounds 剪切预览的播放范围和引擎需要跳过的间隙
// t0, t1 为已解析的区间（倒放时 t0 > t1）
func CutPreviewBounds(t0, t1, beforeLen, afterLen float64) (play0, play1, gapStart, gapLen float64) {
	tless := math.Min(t0, t1)
	tgreater := math.Max(t0, t1)
	diff := tgreater - tless

	play0 = tless - beforeLen
	// 预览轨道已删除剪切区间，之后的内容左移了 diff
	play1 = tgreater + afterLen - diff
	if t0 > t1 {
		play0, play1 = play1, play0
	}
	return play0, play1, tless, diff
}
