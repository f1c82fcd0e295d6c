package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"AudioDeck/core/engine"
	"AudioDeck/logger"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

type journalBlock struct {
	TrackID string  `json:"trackId"`
	Start   float64 `json:"start"`
	Rate    float64 `json:"rate"`
	Samples int     `json:"samples"`
}

type journalEntry struct {
	Owner  string         `json:"owner"`
	Seq    int            `json:"seq"`
	Blocks []journalBlock `json:"blocks"`
}

type pendingCapture struct {
	start   float64
	rate    float64
	samples []float32
}

// DiskCache 单个项目的录音块缓存
// 新块追加到 <dir>/<project>.autosave.log，WriteCacheToDisk 把未落盘的块编码为 wav
type DiskCache struct {
	dir       string
	projectID string

	mu      sync.Mutex
	journal *os.File
	pending map[string]*pendingCapture
	order   []string
	flushes int
	written []string
}

// NewDiskCache 创建项目的磁盘缓存，目录在首次写入时创建
func NewDiskCache(dir, projectID string) *DiskCache {
	return &DiskCache{
		dir:       dir,
		projectID: projectID,
		pending:   make(map[string]*pendingCapture),
	}
}

// JournalPath 块日志路径
func (c *DiskCache) JournalPath() string {
	return filepath.Join(c.dir, c.projectID+".autosave.log")
}

// AppendBlockLog 记录一批新写入的采样块
func (c *DiskCache) AppendBlockLog(log engine.BlockLog) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := journalEntry{Owner: string(log.Owner), Seq: log.Seq}
	for _, b := range log.Blocks {
		entry.Blocks = append(entry.Blocks, journalBlock{TrackID: b.TrackID, Start: b.Start, Rate: b.Rate, Samples: len(b.Samples)})

		p, ok := c.pending[b.TrackID]
		if !ok {
			p = &pendingCapture{start: b.Start, rate: b.Rate}
			c.pending[b.TrackID] = p
			c.order = append(c.order, b.TrackID)
		}
		p.samples = append(p.samples, b.Samples...)
	}

	if err := c.openJournalLocked(); err != nil {
		return err
	}
	if err := json.NewEncoder(c.journal).Encode(entry); err != nil {
		return fmt.Errorf("写入块日志失败: %w", err)
	}
	return nil
}

func (c *DiskCache) openJournalLocked() error {
	if c.journal != nil {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("创建缓存目录失败: %w", err)
	}
	f, err := os.OpenFile(c.JournalPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("打开块日志失败: %w", err)
	}
	c.journal = f
	return nil
}

// WriteCacheToDisk 把未落盘的块写成 wav 文件；没有新块时不做任何事
func (c *DiskCache) WriteCacheToDisk() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.order) == 0 {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("创建缓存目录失败: %w", err)
	}

	c.flushes++
	for _, id := range c.order {
		p := c.pending[id]
		path := filepath.Join(c.dir, fmt.Sprintf("%s-%s-%d.wav", c.projectID, id, c.flushes))
		if err := writeWav(path, p); err != nil {
			return err
		}
		c.written = append(c.written, path)
	}

	if c.journal != nil {
		if err := c.journal.Sync(); err != nil {
			logger.Warn("同步块日志失败", logger.String("projectId", c.projectID), logger.ErrorField(err))
		}
	}

	logger.Info("录音缓存已写入磁盘",
		logger.String("projectId", c.projectID),
		logger.Int("tracks", len(c.order)))
	c.pending = make(map[string]*pendingCapture)
	c.order = nil
	return nil
}

func writeWav(path string, p *pendingCapture) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建 wav 文件失败: %w", err)
	}
	defer f.Close()

	rate := int(p.rate)
	enc := wav.NewEncoder(f, rate, wavBitDepth, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           make([]int, len(p.samples)),
		SourceBitDepth: wavBitDepth,
	}
	for i, s := range p.samples {
		buf.Data[i] = int(clampSample(s) * 32767)
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("写入 wav 数据失败: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("关闭 wav 编码器失败: %w", err)
	}
	return nil
}

func clampSample(s float32) float32 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}

// WrittenFiles 已写出的 wav 文件
func (c *DiskCache) WrittenFiles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

// Close 关闭块日志
func (c *DiskCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.journal == nil {
		return nil
	}
	err := c.journal.Close()
	c.journal = nil
	return err
}
