package project

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"AudioDeck/config"
	"AudioDeck/core/engine"
	"AudioDeck/logger"
)

// ErrNotFound 项目不存在
var ErrNotFound = errors.New("project: not found")

// Registry 打开的项目；所有项目共用同一个音频引擎
type Registry struct {
	ctx  context.Context
	opts Options

	mu       sync.RWMutex
	projects map[string]*Project
	order    []string
	wg       sync.WaitGroup
}

// NewRegistry 创建项目注册表，ctx 结束时所有项目的控制循环退出
func NewRegistry(ctx context.Context, opts Options) *Registry {
	if opts.Engine == nil {
		opts.Engine = engine.Default()
	}
	if opts.Prefs == nil {
		opts.Prefs = config.NewPreferences(config.DefaultTransportPrefs())
	}
	return &Registry{
		ctx:      ctx,
		opts:     opts,
		projects: make(map[string]*Project),
	}
}

// Create 创建项目并启动其控制 goroutine
func (r *Registry) Create(name string) *Project {
	id := uuid.NewString()
	if name == "" {
		name = "Untitled"
	}
	p := New(id, name, r.opts)

	r.mu.Lock()
	r.projects[id] = p
	r.order = append(r.order, id)
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		p.Run(r.ctx)
	}()

	logger.Info("项目已创建", logger.String("projectId", id), logger.String("name", name))
	return p
}

// Get 按ID查找项目
func (r *Registry) Get(id string) (*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// List 按创建顺序列出项目
func (r *Registry) List() []*Project {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Project, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.projects[id])
	}
	return out
}

// ActiveOwner 当前持有引擎的项目ID，没有活动流时为空
func (r *Registry) ActiveOwner() string {
	return string(r.opts.Engine.GetOwningProject())
}

// Wait 等待所有控制循环退出
func (r *Registry) Wait() {
	r.wg.Wait()
}
