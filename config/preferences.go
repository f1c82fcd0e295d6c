package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"

	"AudioDeck/logger"
)

// Preferences 可并发读取的传输偏好
type Preferences struct {
	mu    sync.RWMutex
	prefs TransportPrefs
}

// NewPreferences 创建偏好持有者
func NewPreferences(p TransportPrefs) *Preferences {
	return &Preferences{prefs: p}
}

// Transport 当前偏好的副本
func (p *Preferences) Transport() TransportPrefs {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.prefs
}

// Set 替换偏好
func (p *Preferences) Set(prefs TransportPrefs) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prefs = prefs
}

// Update 在锁内修改偏好
func (p *Preferences) Update(fn func(*TransportPrefs)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.prefs)
}

// ReadPreferencesFile 从 .env 文件读取传输偏好，文件中没有的键使用默认值
func ReadPreferencesFile(path string) (TransportPrefs, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return TransportPrefs{}, fmt.Errorf("读取偏好文件失败: %w", err)
	}
	return transportPrefsFrom(func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}), nil
}

// WatchPreferences 监听 path 的变化并重新加载到 prefs，ctx 结束时返回
func WatchPreferences(ctx context.Context, path string, prefs *Preferences) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听失败: %w", err)
	}

	// 监听目录，编辑器保存时常常是替换文件
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("监听目录失败: %w", err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				p, err := ReadPreferencesFile(path)
				if err != nil {
					logger.Warn("reload preferences failed", logger.String("path", path), logger.ErrorField(err))
					continue
				}
				prefs.Set(p)
				logger.Info("偏好设置已重新加载",
					logger.String("path", path),
					logger.Int("recordChannels", p.RecordChannels),
					logger.Bool("duplex", p.Duplex))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("watcher error", logger.ErrorField(err))
			}
		}
	}()
	return nil
}
