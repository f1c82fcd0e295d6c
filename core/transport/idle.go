package transport

import "sync"

// IdleQueue 延迟到控制线程空闲时执行的任务
// 引擎回调里不直接弹窗或再次操作引擎，只把任务放进队列
type IdleQueue struct {
	mu    sync.Mutex
	tasks []func()
}

// NewIdleQueue 创建空队列
func NewIdleQueue() *IdleQueue {
	return &IdleQueue{}
}

// CallAfter 追加任务，可以在任意 goroutine 调用
func (q *IdleQueue) CallAfter(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()
}

// ProcessIdle 执行一个任务；队列为空时返回 false
func (q *IdleQueue) ProcessIdle() bool {
	q.mu.Lock()
	if len(q.tasks) == 0 {
		q.mu.Unlock()
		return false
	}
	fn := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	q.mu.Unlock()

	fn()
	return true
}

// Drain 执行队列中的任务，最多 limit 个（limit <= 0 表示不限），返回执行数量
// 任务执行中追加的新任务也会被执行
func (q *IdleQueue) Drain(limit int) int {
	n := 0
	for limit <= 0 || n < limit {
		if !q.ProcessIdle() {
			break
		}
		n++
	}
	return n
}

// Len 待执行任务数
func (q *IdleQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
