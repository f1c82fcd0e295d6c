package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"AudioDeck/core/transport"
	"AudioDeck/logger"
	"AudioDeck/model"

	"github.com/gorilla/websocket"
)

// 客户端消息类型
const (
	MsgTypePing = "ping"
	MsgTypePong = "pong"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// ClientMessage 客户端发来的消息
type ClientMessage struct {
	Type string `json:"type"`
}

// Client 订阅某个项目事件的 WebSocket 连接
type Client struct {
	Hub       *EventHub
	Conn      *websocket.Conn
	Send      chan []byte
	ProjectID string
}

// NewClient 创建客户端
func NewClient(hub *EventHub, conn *websocket.Conn, projectID string) *Client {
	return &Client{Hub: hub, Conn: conn, Send: make(chan []byte, sendBuffer), ProjectID: projectID}
}

type broadcastMessage struct {
	projectID string
	message   []byte
}

// EventHub 按项目分组的 WebSocket 事件中心
type EventHub struct {
	// 项目 -> 客户端集合
	projects map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage

	mu   sync.RWMutex
	done chan struct{}
	once sync.Once
}

// NewEventHub 创建事件中心
func NewEventHub() *EventHub {
	return &EventHub{
		projects:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *EventHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastToProject(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub，可重复调用
func (h *EventHub) Stop() {
	h.once.Do(func() { close(h.done) })
}

func (h *EventHub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.projects[client.ProjectID] == nil {
		h.projects[client.ProjectID] = make(map[*Client]bool)
	}
	h.projects[client.ProjectID][client] = true

	logger.Info("client registered",
		logger.String("project", client.ProjectID),
		logger.Int("clients", len(h.projects[client.ProjectID])))
}

func (h *EventHub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeClient(client)
}

// removeClient 移除客户端（需要持有锁）
func (h *EventHub) removeClient(client *Client) {
	clients, ok := h.projects[client.ProjectID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.projects, client.ProjectID)
	}

	logger.Info("client unregistered", logger.String("project", client.ProjectID))
}

func (h *EventHub) broadcastToProject(msg *broadcastMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.projects[msg.projectID] {
		select {
		case client.Send <- msg.message:
		default:
			// 发送缓冲区满，移除客户端
			h.removeClient(client)
		}
	}
}

func (h *EventHub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.projects {
		for client := range clients {
			close(client.Send)
		}
	}
	h.projects = make(map[string]map[*Client]bool)
}

// Register 注册客户端
func (h *EventHub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

// Unregister 注销客户端
func (h *EventHub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount 项目的连接数
func (h *EventHub) ClientCount(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.projects[projectID])
}

// BroadcastEvent 向项目的所有连接广播事件；不阻塞，队列满时丢弃
func (h *EventHub) BroadcastEvent(ev model.TransportEvent) {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Warn("序列化事件失败", logger.String("project", ev.ProjectID), logger.ErrorField(err))
		return
	}

	select {
	case h.broadcast <- &broadcastMessage{projectID: ev.ProjectID, message: data}:
	default:
		logger.Warn("事件队列已满，丢弃事件",
			logger.String("project", ev.ProjectID),
			logger.String("type", ev.Type))
	}
}

// PublishState 把传输状态推送给项目的连接
func (h *EventHub) PublishState(s model.TransportSnapshot) {
	h.BroadcastEvent(model.TransportEvent{Type: model.EventTypeState, ProjectID: s.ProjectID, Data: s})
}

// NotifierFor 项目的用户提示，以事件形式推送
func (h *EventHub) NotifierFor(projectID string) transport.Notifier {
	return &hubNotifier{hub: h, projectID: projectID}
}

type hubNotifier struct {
	hub       *EventHub
	projectID string
}

func (n *hubNotifier) ShowError(title, message, helpPage string) {
	logger.Warn("transport error shown",
		logger.String("project", n.projectID),
		logger.String("title", title),
		logger.String("help", helpPage))
	n.hub.BroadcastEvent(model.TransportEvent{
		Type:      model.EventTypeError,
		ProjectID: n.projectID,
		Title:     title,
		Message:   message,
		HelpPage:  helpPage,
	})
}

func (n *hubNotifier) ShowWarning(key, message string) {
	n.hub.BroadcastEvent(model.TransportEvent{
		Type:      model.EventTypeWarning,
		ProjectID: n.projectID,
		Title:     key,
		Message:   message,
	})
}

func (n *hubNotifier) SetStatus(field, text string) {
	n.hub.BroadcastEvent(model.TransportEvent{
		Type:      model.EventTypeStatus,
		ProjectID: n.projectID,
		Title:     field,
		Message:   text,
	})
}

// ========== Client 方法 ==========

// ReadPump 读取消息循环，只处理心跳
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error",
					logger.ErrorField(err),
					logger.String("project", c.ProjectID))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("invalid message format",
				logger.ErrorField(err),
				logger.String("project", c.ProjectID))
			continue
		}

		if msg.Type == MsgTypePing {
			c.Hub.sendPong(c)
		}
	}
}

// sendPong 在持有读锁时写入，避免与 removeClient 关闭通道竞争
func (h *EventHub) sendPong(c *Client) {
	data, err := json.Marshal(map[string]interface{}{"type": MsgTypePong, "timestamp": time.Now().UnixMilli()})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.projects[c.ProjectID][c] {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

// WritePump 写入消息循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 合并发送队列中的消息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
