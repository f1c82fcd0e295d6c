package engine

import (
	"math"
	"sync"
	"time"

	"AudioDeck/logger"
	"AudioDeck/model"
)

// Config 模拟引擎配置
type Config struct {
	InputChannels int  // 输入设备声道数
	BlockFrames   int  // 每次处理的帧数
	Realtime      bool // 是否由内部 goroutine 按实时速度推进
	// 录音信号发生器，为空时生成 440Hz 正弦
	Generator func(channel int, frame int64, rate float64) float32
}

// DefaultConfig 默认配置：双声道输入，实时推进
func DefaultConfig() Config {
	return Config{
		InputChannels: 2,
		BlockFrames:   1024,
		Realtime:      true,
	}
}

// SimEngine 进程内共享的模拟音频引擎
// 同一时刻只允许一个流处于活动状态，流的所有者由 Owner 标识
type SimEngine struct {
	cfg Config

	mu         sync.Mutex
	nextToken  Token
	token      Token
	owner      Owner
	opts       StreamOptions
	tracks     TransportTracks
	numCapture int
	monitoring bool
	paused     bool
	scrubbing  bool
	finishing  bool          // StopStream 回调尚未结束
	finished   chan struct{} // finishing 结束时关闭

	t0, t1 float64
	pos    float64
	dir    float64

	frames   int64
	blockSeq int
	lost     []model.Interval
	failNext string
	lastErr  string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

var (
	defaultEngine *SimEngine
	defaultOnce   sync.Once
)

// Default 进程级共享引擎
func Default() *SimEngine {
	defaultOnce.Do(func() {
		defaultEngine = NewSimEngine(DefaultConfig())
	})
	return defaultEngine
}

// NewSimEngine 创建模拟引擎
func NewSimEngine(cfg Config) *SimEngine {
	if cfg.BlockFrames <= 0 {
		cfg.BlockFrames = 1024
	}
	if cfg.Generator == nil {
		cfg.Generator = func(channel int, frame int64, rate float64) float32 {
			return float32(0.25 * math.Sin(2*math.Pi*440*float64(frame)/rate))
		}
	}
	return &SimEngine{cfg: cfg, nextToken: 1}
}

// IsBusy 是否有项目持有流（监听不算）
func (e *SimEngine) IsBusy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.token != 0 || e.finishing
}

// IsStreamActive 是否有流在运行（包括监听）
func (e *SimEngine) IsStreamActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.token != 0 || e.monitoring
}

// IsStreamActiveToken 指定 token 的流是否在运行
func (e *SimEngine) IsStreamActiveToken(token Token) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return token > 0 && e.token == token
}

// IsMonitoring 是否仅在监听输入
func (e *SimEngine) IsMonitoring() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.monitoring && e.token == 0
}

// IsPaused 是否暂停
func (e *SimEngine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// IsScrubbing 当前流是否为拖动播放
func (e *SimEngine) IsScrubbing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.token != 0 && e.scrubbing
}

// GetNumCaptureChannels 当前流的录音声道数
func (e *SimEngine) GetNumCaptureChannels() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.token == 0 {
		return 0
	}
	return e.numCapture
}

// GetOwningProject 当前流的所有者，没有流时为空
func (e *SimEngine) GetOwningProject() Owner {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.token == 0 {
		return ""
	}
	return e.owner
}

// GetStreamTime 当前播放/录音位置
func (e *SimEngine) GetStreamTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pos
}

// LostCaptureIntervals 最近一次录音中丢失的区间
func (e *SimEngine) LostCaptureIntervals() []model.Interval {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Interval(nil), e.lost...)
}

// LastErrorString 最近一次启动失败的原因
func (e *SimEngine) LastErrorString() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// StartMonitoring 开始输入监听
func (e *SimEngine) StartMonitoring() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.token == 0 {
		e.monitoring = true
	}
}

// StopMonitoring 停止输入监听
func (e *SimEngine) StopMonitoring() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.monitoring = false
}

// InjectFailure 让下一次 StartStream 失败
func (e *SimEngine) InjectFailure(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failNext = reason
}

// InjectDropout 模拟录音丢失一段数据
func (e *SimEngine) InjectDropout(start, duration float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.token != 0 && e.numCapture > 0 {
		e.lost = append(e.lost, model.Interval{Start: start, Duration: duration})
	}
}

// TriggerSoundActivation 模拟声控阈值事件
func (e *SimEngine) TriggerSoundActivation() {
	e.mu.Lock()
	listener := e.opts.Listener
	active := e.token != 0
	e.mu.Unlock()

	if active && listener != nil {
		listener.OnSoundActivationThreshold()
	}
}

// StartStream 启动一个流；失败时返回 FailedToken
// t0 > t1 表示倒放
func (e *SimEngine) StartStream(tracks TransportTracks, t0, t1 float64, opts StreamOptions) Token {
	e.mu.Lock()
	if reason := e.checkStartLocked(tracks, opts); reason != "" {
		e.lastErr = reason
		e.mu.Unlock()
		logger.Warn("audio stream start failed",
			logger.String("owner", string(opts.Owner)),
			logger.String("reason", reason))
		return FailedToken
	}

	token := e.nextToken
	e.nextToken++
	e.token = token
	e.owner = opts.Owner
	e.opts = opts
	e.tracks = tracks
	e.numCapture = len(tracks.CaptureTracks)
	e.monitoring = false
	e.paused = false
	e.scrubbing = opts.Scrubbing
	e.t0, e.t1, e.pos = t0, t1, t0
	e.dir = 1
	if t1 < t0 {
		e.dir = -1
	}
	e.frames = 0
	e.blockSeq = 0
	e.lost = nil
	e.lastErr = ""
	numCapture := e.numCapture
	listener := opts.Listener
	stopCh := make(chan struct{})
	e.stopCh = stopCh
	e.mu.Unlock()

	logger.Info("audio stream started",
		logger.Int("token", int(token)),
		logger.String("owner", string(opts.Owner)),
		logger.Float64("t0", t0),
		logger.Float64("t1", t1),
		logger.Int("captureChannels", numCapture))

	if listener != nil {
		listener.OnAudioIORate(int(opts.Rate))
		if numCapture > 0 {
			listener.OnAudioIOStartRecording()
		}
	}

	if e.cfg.Realtime {
		e.wg.Add(1)
		go e.run(token, stopCh, opts.Rate)
	}
	return token
}

func (e *SimEngine) checkStartLocked(tracks TransportTracks, opts StreamOptions) string {
	if e.failNext != "" {
		reason := e.failNext
		e.failNext = ""
		return reason
	}
	if e.token != 0 || e.finishing {
		return "Device unavailable: stream already active"
	}
	if opts.Rate <= 0 {
		return "Invalid sample rate"
	}
	if len(tracks.CaptureTracks) > 0 && e.cfg.InputChannels <= 0 {
		return "No input device"
	}
	return ""
}

func (e *SimEngine) run(token Token, stopCh chan struct{}, rate float64) {
	defer e.wg.Done()

	period := time.Duration(float64(e.cfg.BlockFrames) / rate * float64(time.Second))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !e.Process(e.cfg.BlockFrames) {
				e.stop(token, true)
				return
			}
		}
	}
}

// Process 推进 frames 帧；返回 false 表示流已到达终点或不存在
func (e *SimEngine) Process(frames int) bool {
	e.mu.Lock()
	if e.token == 0 {
		e.mu.Unlock()
		return false
	}
	if e.paused {
		e.mu.Unlock()
		return true
	}

	rate := e.opts.Rate
	var log BlockLog
	if e.numCapture > 0 {
		e.blockSeq++
		log = BlockLog{Owner: e.owner, Seq: e.blockSeq}
		inputs := e.numCapture
		if inputs > e.cfg.InputChannels {
			inputs = e.cfg.InputChannels
		}
		for c, track := range e.tracks.CaptureTracks {
			samples := make([]float32, frames)
			if c < inputs {
				for i := range samples {
					samples[i] = e.cfg.Generator(c, e.frames+int64(i), rate)
				}
			}
			track.Append(samples)
			log.Blocks = append(log.Blocks, Block{TrackID: track.ID, Start: e.pos, Rate: rate, Samples: samples})
			if c == 0 {
				updateMeter(e.opts.CaptureMeter, samples)
			}
		}
	}
	e.frames += int64(frames)

	e.pos += e.dir * float64(frames) / rate
	finished := false
	if e.numCapture == 0 || e.t1 != model.Unbounded {
		past := (e.dir > 0 && e.pos >= e.t1) || (e.dir < 0 && e.pos <= e.t1)
		if past {
			if e.opts.PlayLooped && e.t1 != e.t0 {
				span := math.Abs(e.t1 - e.t0)
				over := math.Mod(math.Abs(e.pos-e.t1), span)
				e.pos = e.t0 + e.dir*over
			} else {
				e.pos = e.t1
				finished = true
			}
		}
	}
	listener := e.opts.Listener
	e.mu.Unlock()

	if len(log.Blocks) > 0 && listener != nil {
		listener.OnAudioIONewBlocks(log)
	}
	return !finished
}

func updateMeter(m Meter, samples []float32) {
	if pm, ok := m.(*PeakMeter); ok {
		pm.Update(samples)
	}
}

// StopStream 停止当前流；录音流会依次触发 OnCommitRecording 和 OnAudioIOStopRecording
// 流正在自行结束时等待其回调完成后再返回
func (e *SimEngine) StopStream() {
	e.mu.Lock()
	token := e.token
	e.mu.Unlock()
	if token == 0 {
		return
	}
	e.stop(token, false)
}

func (e *SimEngine) stop(token Token, fromWorker bool) {
	e.mu.Lock()
	if e.token != token {
		e.mu.Unlock()
		return
	}
	if e.finishing {
		// 另一方正在收尾；外部调用者等到提交与停止回调都完成
		done := e.finished
		e.mu.Unlock()
		if !fromWorker && done != nil {
			<-done
		}
		return
	}
	e.finishing = true
	done := make(chan struct{})
	e.finished = done
	stopCh := e.stopCh
	e.stopCh = nil
	numCapture := e.numCapture
	listener := e.opts.Listener
	owner := e.owner
	e.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if !fromWorker {
		e.wg.Wait()
	}

	// 采样已经逐块写入录音轨道，此处无需额外刷新
	if listener != nil && numCapture > 0 {
		listener.OnCommitRecording()
		listener.OnAudioIOStopRecording()
	}

	e.mu.Lock()
	e.token = 0
	e.owner = ""
	e.numCapture = 0
	e.paused = false
	e.scrubbing = false
	e.tracks = TransportTracks{}
	e.opts = StreamOptions{}
	e.finishing = false
	e.finished = nil
	e.mu.Unlock()
	close(done)

	logger.Info("audio stream stopped",
		logger.Int("token", int(token)),
		logger.String("owner", string(owner)))
}

// SetPaused 暂停或恢复当前流
func (e *SimEngine) SetPaused(paused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = paused
}

// SeekStream 跳转到指定时间
func (e *SimEngine) SeekStream(t float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.token != 0 {
		e.pos = t
	}
}
