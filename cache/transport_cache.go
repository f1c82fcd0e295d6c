package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"AudioDeck/logger"
	"AudioDeck/model"

	"github.com/go-redis/redis/v8"
)

const (
	stateField       = "snapshot"
	defaultStateTTL  = 24 * time.Hour
	defaultQueueSize = 128
)

// StateKey 项目传输状态的哈希键
func StateKey(projectID string) string {
	return fmt.Sprintf("transport:%s:state", projectID)
}

// EventsChannel 项目传输事件频道
func EventsChannel(projectID string) string {
	return fmt.Sprintf("transport:%s:events", projectID)
}

// TransportCache 在 Redis 中保存传输状态并广播事件
// PublishState 只入队，由后台 goroutine 写入 Redis
type TransportCache struct {
	client *redis.Client
	ttl    time.Duration
	queue  chan model.TransportSnapshot
	wg     sync.WaitGroup
}

// NewTransportCache 创建传输状态缓存，ttl <= 0 时使用 24 小时
func NewTransportCache(client *redis.Client, ttl time.Duration) *TransportCache {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &TransportCache{
		client: client,
		ttl:    ttl,
		queue:  make(chan model.TransportSnapshot, defaultQueueSize),
	}
}

// stateFields 快照写入哈希的字段
func stateFields(s model.TransportSnapshot) (map[string]interface{}, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("序列化传输状态失败: %w", err)
	}
	return map[string]interface{}{
		stateField:  data,
		"token":     s.Token,
		"playing":   strconv.FormatBool(s.Playing),
		"recording": strconv.FormatBool(s.Recording),
		"updatedAt": s.UpdatedAt,
	}, nil
}

func decodeState(data string) (*model.TransportSnapshot, error) {
	var s model.TransportSnapshot
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("解析传输状态失败: %w", err)
	}
	return &s, nil
}

// SetState 写入项目传输状态
func (c *TransportCache) SetState(ctx context.Context, s model.TransportSnapshot) error {
	fields, err := stateFields(s)
	if err != nil {
		return err
	}

	key := StateKey(s.ProjectID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("写入传输状态失败: %w", err)
	}
	return nil
}

// GetState 读取项目传输状态，不存在时返回 nil, nil
func (c *TransportCache) GetState(ctx context.Context, projectID string) (*model.TransportSnapshot, error) {
	data, err := c.client.HGet(ctx, StateKey(projectID), stateField).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("读取传输状态失败: %w", err)
	}
	return decodeState(data)
}

// Publish 广播传输事件
func (c *TransportCache) Publish(ctx context.Context, ev model.TransportEvent) error {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化传输事件失败: %w", err)
	}
	if err := c.client.Publish(ctx, EventsChannel(ev.ProjectID), data).Err(); err != nil {
		return fmt.Errorf("发布传输事件失败: %w", err)
	}
	return nil
}

// Subscribe 订阅项目传输事件
func (c *TransportCache) Subscribe(ctx context.Context, projectID string) *redis.PubSub {
	return c.client.Subscribe(ctx, EventsChannel(projectID))
}

// PublishState 状态变化时调用；不阻塞，队列满时丢弃
func (c *TransportCache) PublishState(s model.TransportSnapshot) {
	select {
	case c.queue <- s:
	default:
		logger.Warn("传输状态队列已满，丢弃更新", logger.String("projectId", s.ProjectID))
	}
}

// Start 启动写入 goroutine，ctx 结束时退出
func (c *TransportCache) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-c.queue:
				c.store(s)
			}
		}
	}()
}

// Wait 等待写入 goroutine 退出
func (c *TransportCache) Wait() {
	c.wg.Wait()
}

func (c *TransportCache) store(s model.TransportSnapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.SetState(ctx, s); err != nil {
		logger.Warn("缓存传输状态失败", logger.String("projectId", s.ProjectID), logger.ErrorField(err))
		return
	}
	ev := model.TransportEvent{Type: model.EventTypeState, ProjectID: s.ProjectID, Data: s}
	if err := c.Publish(ctx, ev); err != nil {
		logger.Warn("广播传输状态失败", logger.String("projectId", s.ProjectID), logger.ErrorField(err))
	}
}
