package model

import (
	"fmt"
	"math"
	"reflect"
	"sync"

	"github.com/go-audio/audio"
	"github.com/google/uuid"
)

// TrackKind 轨道类型，取值封闭
type TrackKind string

const (
	TrackKindWave  TrackKind = "wave"  // 音频轨
	TrackKindNote  TrackKind = "note"  // MIDI 音符轨
	TrackKindLabel TrackKind = "label" // 标签轨
	TrackKindTime  TrackKind = "time"  // 变速轨
)

// ParseTrackKind 解析轨道类型
func ParseTrackKind(s string) (TrackKind, error) {
	switch k := TrackKind(s); k {
	case TrackKindWave, TrackKindNote, TrackKindLabel, TrackKindTime:
		return k, nil
	}
	return "", fmt.Errorf("未知的轨道类型: %s", s)
}

// WaveClip 一段连续的采样
type WaveClip struct {
	Offset float64
	Buffer *audio.Float32Buffer
}

// Note 一个 MIDI 音符
type Note struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Pitch    int     `json:"pitch"`
}

// Label 标签
type Label struct {
	Region SelectedRegion `json:"region"`
	Text   string         `json:"text"`
}

// EnvPoint 包络点
type EnvPoint struct {
	T     float64 `json:"t"`
	Value float64 `json:"value"`
}

type waveData struct {
	rate   float64
	offset float64 // 无片段时的起点
	clips  []*WaveClip
}

type noteData struct {
	notes []Note
}

type labelData struct {
	labels []Label
}

type timeData struct {
	points []EnvPoint
}

// Track 项目中的一个轨道（一个声道）
// 多声道轨道由 GroupID 相同的若干 Track 组成，首个为 leader
type Track struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      TrackKind `json:"kind"`
	Selected  bool      `json:"selected"`
	GroupID   string    `json:"groupId"`
	Minimized bool      `json:"minimized"`

	mu    sync.RWMutex
	wave  *waveData
	note  *noteData
	label *labelData
	time  *timeData
}

// NewWaveTrack 创建空音频轨
func NewWaveTrack(name string, rate float64) *Track {
	t := newTrack(name, TrackKindWave)
	t.wave = &waveData{rate: rate}
	return t
}

// NewNoteTrack 创建空音符轨
func NewNoteTrack(name string) *Track {
	t := newTrack(name, TrackKindNote)
	t.note = &noteData{}
	return t
}

// NewLabelTrack 创建空标签轨
func NewLabelTrack(name string) *Track {
	t := newTrack(name, TrackKindLabel)
	t.label = &labelData{}
	return t
}

// NewTimeTrack 创建变速轨
func NewTimeTrack(name string) *Track {
	t := newTrack(name, TrackKindTime)
	t.time = &timeData{points: []EnvPoint{{T: 0, Value: 1}}}
	return t
}

func newTrack(name string, kind TrackKind) *Track {
	id := uuid.NewString()
	return &Track{ID: id, Name: name, Kind: kind, GroupID: id}
}

// IsPlayable 音频轨和音符轨可以播放
func (t *Track) IsPlayable() bool {
	return t.Kind == TrackKindWave || t.Kind == TrackKindNote
}

// IsLeader 是否为声道组的第一个声道
func (t *Track) IsLeader() bool {
	return t.GroupID == t.ID
}

// Rate 采样率，非音频轨返回 0
func (t *Track) Rate() float64 {
	if t.Kind != TrackKindWave {
		return 0
	}
	return t.wave.rate
}

// TimeToLongSamples 时间转采样数（四舍五入）
func (t *Track) TimeToLongSamples(sec float64) int64 {
	return int64(math.Floor(sec*t.Rate() + 0.5))
}

// LongSamplesToTime 采样数转时间
func (t *Track) LongSamplesToTime(n int64) float64 {
	return float64(n) / t.Rate()
}

// HasContent 轨道是否有可计入时间范围的内容
func (t *Track) HasContent() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	switch t.Kind {
	case TrackKindWave:
		return len(t.wave.clips) > 0
	case TrackKindNote:
		return len(t.note.notes) > 0
	case TrackKindLabel:
		return len(t.label.labels) > 0
	case TrackKindTime:
		return false
	}
	return false
}

// StartTime 轨道内容起点
func (t *Track) StartTime() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	start := math.Inf(1)
	switch t.Kind {
	case TrackKindWave:
		if len(t.wave.clips) == 0 {
			return t.wave.offset
		}
		for _, c := range t.wave.clips {
			start = math.Min(start, c.Offset)
		}
	case TrackKindNote:
		for _, n := range t.note.notes {
			start = math.Min(start, n.Start)
		}
	case TrackKindLabel:
		for _, l := range t.label.labels {
			start = math.Min(start, l.Region.T0)
		}
	case TrackKindTime:
		return 0
	}
	if math.IsInf(start, 1) {
		return 0
	}
	return start
}

// EndTime 轨道内容终点
func (t *Track) EndTime() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	end := math.Inf(-1)
	switch t.Kind {
	case TrackKindWave:
		if len(t.wave.clips) == 0 {
			return t.wave.offset
		}
		for _, c := range t.wave.clips {
			end = math.Max(end, t.wave.clipEnd(c))
		}
	case TrackKindNote:
		for _, n := range t.note.notes {
			end = math.Max(end, n.Start+n.Duration)
		}
	case TrackKindLabel:
		for _, l := range t.label.labels {
			end = math.Max(end, l.Region.T1)
		}
	case TrackKindTime:
		return 0
	}
	if math.IsInf(end, -1) {
		return 0
	}
	return end
}

// SetOffset 移动轨道起点
func (t *Track) SetOffset(offset float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Kind != TrackKindWave {
		return
	}
	if len(t.wave.clips) == 0 {
		t.wave.offset = offset
		return
	}
	start := math.Inf(1)
	for _, c := range t.wave.clips {
		start = math.Min(start, c.Offset)
	}
	for _, c := range t.wave.clips {
		c.Offset += offset - start
	}
}

// Duplicate 深拷贝，不与原轨道共享采样存储
func (t *Track) Duplicate() *Track {
	t.mu.RLock()
	defer t.mu.RUnlock()

	d := &Track{
		ID:        t.ID,
		Name:      t.Name,
		Kind:      t.Kind,
		Selected:  t.Selected,
		GroupID:   t.GroupID,
		Minimized: t.Minimized,
	}
	switch t.Kind {
	case TrackKindWave:
		w := &waveData{rate: t.wave.rate, offset: t.wave.offset}
		for _, c := range t.wave.clips {
			w.clips = append(w.clips, &WaveClip{Offset: c.Offset, Buffer: copyBuffer(c.Buffer)})
		}
		d.wave = w
	case TrackKindNote:
		d.note = &noteData{notes: append([]Note(nil), t.note.notes...)}
	case TrackKindLabel:
		d.label = &labelData{labels: append([]Label(nil), t.label.labels...)}
	case TrackKindTime:
		d.time = &timeData{points: append([]EnvPoint(nil), t.time.points...)}
	}
	return d
}

// Reinit 从 src 复制非采样数据
func (t *Track) Reinit(src *Track) {
	t.Name = src.Name
	t.Selected = src.Selected
	t.Minimized = src.Minimized
}

// Clear 删除 [t0, t1) 区间的内容，后面的内容左移
func (t *Track) Clear(t0, t1 float64) {
	if t1 <= t0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	shift := t1 - t0
	switch t.Kind {
	case TrackKindWave:
		t.wave.clear(t0, t1)
	case TrackKindNote:
		kept := t.note.notes[:0:0]
		for _, n := range t.note.notes {
			switch {
			case n.Start < t0:
				kept = append(kept, n)
			case n.Start >= t1:
				n.Start -= shift
				kept = append(kept, n)
			}
		}
		t.note.notes = kept
	case TrackKindLabel:
		kept := t.label.labels[:0:0]
		for _, l := range t.label.labels {
			r := l.Region
			switch {
			case r.T1 <= t0:
			case r.T0 >= t1:
				r.T0 -= shift
				r.T1 -= shift
			case r.T0 >= t0 && r.T1 <= t1:
				continue
			default:
				if r.T1 > t1 {
					r.T1 -= shift
				} else {
					r.T1 = t0
				}
				r.T0 = math.Min(r.T0, t0)
			}
			l.Region = r
			kept = append(kept, l)
		}
		t.label.labels = kept
	case TrackKindTime:
		kept := t.time.points[:0:0]
		for _, p := range t.time.points {
			switch {
			case p.T < t0:
				kept = append(kept, p)
			case p.T >= t1:
				p.T -= shift
				kept = append(kept, p)
			}
		}
		t.time.points = kept
	}
}

// InsertSilence 在 at 处插入 dur 秒静音（仅音频轨）
func (t *Track) InsertSilence(at, dur float64) {
	if dur <= 0 || t.Kind != TrackKindWave {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.wave
	n := int(math.Floor(dur*w.rate + 0.5))
	inserted := false
	for _, c := range w.clips {
		end := w.clipEnd(c)
		switch {
		case c.Offset >= at:
			c.Offset += dur
		case end > at:
			pos := int(math.Floor((at-c.Offset)*w.rate + 0.5))
			data := make([]float32, 0, len(c.Buffer.Data)+n)
			data = append(data, c.Buffer.Data[:pos]...)
			data = append(data, make([]float32, n)...)
			data = append(data, c.Buffer.Data[pos:]...)
			c.Buffer.Data = data
			inserted = true
		}
	}
	if !inserted {
		w.clips = append(w.clips, &WaveClip{Offset: at, Buffer: w.newBuffer(make([]float32, n))})
	}
}

// Append 在轨道末尾追加采样（录音写入路径）
func (t *Track) Append(samples []float32) {
	if t.Kind != TrackKindWave || len(samples) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.wave
	if len(w.clips) == 0 {
		w.clips = append(w.clips, &WaveClip{Offset: w.offset, Buffer: w.newBuffer(nil)})
	}
	last := w.clips[len(w.clips)-1]
	for _, c := range w.clips {
		if w.clipEnd(c) > w.clipEnd(last) {
			last = c
		}
	}
	last.Buffer.Data = append(last.Buffer.Data, samples...)
}

// Clips 返回片段的拷贝
func (t *Track) Clips() []WaveClip {
	if t.Kind != TrackKindWave {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]WaveClip, 0, len(t.wave.clips))
	for _, c := range t.wave.clips {
		out = append(out, WaveClip{Offset: c.Offset, Buffer: copyBuffer(c.Buffer)})
	}
	return out
}

// SampleCount 全部片段的采样总数
func (t *Track) SampleCount() int {
	if t.Kind != TrackKindWave {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, c := range t.wave.clips {
		n += len(c.Buffer.Data)
	}
	return n
}

// AddLabel 添加标签（仅标签轨）
func (t *Track) AddLabel(region SelectedRegion, text string) {
	if t.Kind != TrackKindLabel {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.label.labels = append(t.label.labels, Label{Region: region, Text: text})
}

// Labels 返回标签拷贝
func (t *Track) Labels() []Label {
	if t.Kind != TrackKindLabel {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Label(nil), t.label.labels...)
}

// AddNote 添加音符（仅音符轨）
func (t *Track) AddNote(n Note) {
	if t.Kind != TrackKindNote {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.note.notes = append(t.note.notes, n)
}

// Notes 返回音符拷贝
func (t *Track) Notes() []Note {
	if t.Kind != TrackKindNote {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Note(nil), t.note.notes...)
}

// AddEnvPoint 添加包络点（仅变速轨）
func (t *Track) AddEnvPoint(p EnvPoint) {
	if t.Kind != TrackKindTime {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.time.points = append(t.time.points, p)
}

// Envelope 返回包络点拷贝
func (t *Track) Envelope() []EnvPoint {
	if t.Kind != TrackKindTime {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]EnvPoint(nil), t.time.points...)
}

// Equal 结构相等
func (t *Track) Equal(o *Track) bool {
	if t == nil || o == nil {
		return t == o
	}
	if t.ID != o.ID || t.Name != o.Name || t.Kind != o.Kind || t.Selected != o.Selected ||
		t.GroupID != o.GroupID || t.Minimized != o.Minimized {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	o.mu.RLock()
	defer o.mu.RUnlock()

	switch t.Kind {
	case TrackKindWave:
		if t.wave.rate != o.wave.rate || t.wave.offset != o.wave.offset || len(t.wave.clips) != len(o.wave.clips) {
			return false
		}
		for i, c := range t.wave.clips {
			oc := o.wave.clips[i]
			if c.Offset != oc.Offset || !sameSlice(c.Buffer.Data, oc.Buffer.Data) {
				return false
			}
		}
		return true
	case TrackKindNote:
		return sameSlice(t.note.notes, o.note.notes)
	case TrackKindLabel:
		return sameSlice(t.label.labels, o.label.labels)
	case TrackKindTime:
		return sameSlice(t.time.points, o.time.points)
	}
	return false
}

// sameSlice 比较内容，nil 与空切片视为相等
func sameSlice[T any](a, b []T) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// TrackInfo 轨道摘要，用于 API 输出
type TrackInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      TrackKind `json:"kind"`
	Selected  bool      `json:"selected"`
	GroupID   string    `json:"groupId"`
	Leader    bool      `json:"leader"`
	Minimized bool      `json:"minimized"`
	Start     float64   `json:"start"`
	End       float64   `json:"end"`
	Rate      float64   `json:"rate,omitempty"`
	Samples   int       `json:"samples,omitempty"`
	Labels    []Label   `json:"labels,omitempty"`
}

// Info 生成轨道摘要
func (t *Track) Info() TrackInfo {
	return TrackInfo{
		ID:        t.ID,
		Name:      t.Name,
		Kind:      t.Kind,
		Selected:  t.Selected,
		GroupID:   t.GroupID,
		Leader:    t.IsLeader(),
		Minimized: t.Minimized,
		Start:     t.StartTime(),
		End:       t.EndTime(),
		Rate:      t.Rate(),
		Samples:   t.SampleCount(),
		Labels:    t.Labels(),
	}
}

func (w *waveData) clipEnd(c *WaveClip) float64 {
	return c.Offset + float64(len(c.Buffer.Data))/w.rate
}

func (w *waveData) newBuffer(data []float32) *audio.Float32Buffer {
	return &audio.Float32Buffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: int(w.rate)},
		Data:           data,
		SourceBitDepth: 32,
	}
}

func (w *waveData) clear(t0, t1 float64) {
	shift := t1 - t0
	kept := w.clips[:0:0]
	for _, c := range w.clips {
		start, end := c.Offset, w.clipEnd(c)
		switch {
		case end <= t0:
			kept = append(kept, c)
		case start >= t1:
			c.Offset -= shift
			kept = append(kept, c)
		default:
			n := len(c.Buffer.Data)
			s0 := clampIndex(int(math.Floor((t0-start)*w.rate+0.5)), n)
			s1 := clampIndex(int(math.Floor((t1-start)*w.rate+0.5)), n)
			data := make([]float32, 0, n-(s1-s0))
			data = append(data, c.Buffer.Data[:s0]...)
			data = append(data, c.Buffer.Data[s1:]...)
			if len(data) == 0 {
				continue
			}
			c.Buffer.Data = data
			if start > t0 {
				c.Offset = t0
			}
			kept = append(kept, c)
		}
	}
	w.clips = kept
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func copyBuffer(b *audio.Float32Buffer) *audio.Float32Buffer {
	if b == nil {
		return nil
	}
	out := &audio.Float32Buffer{
		Data:           append([]float32(nil), b.Data...),
		SourceBitDepth: b.SourceBitDepth,
	}
	if b.Format != nil {
		f := *b.Format
		out.Format = &f
	}
	return out
}
