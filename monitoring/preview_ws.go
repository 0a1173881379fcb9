package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"rvhrisk/clinical"
)

// MessageType 消息类型
type MessageType string

const (
	PreviewEcho     MessageType = "preview"
	AssessmentEvent MessageType = "assessment"
	SystemStatus    MessageType = "system_status"
	Heartbeat       MessageType = "heartbeat"
)

// Message 推送消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id"`
}

// ClientMessage 客户端消息
type ClientMessage struct {
	Type   string            `json:"type"` // preview, ping
	Values map[string]string `json:"values,omitempty"`
}

// PreviewMessage 输入预览消息，回显当前表单状态对应的特征记录
type PreviewMessage struct {
	Record clinical.Record       `json:"record"`
	Named  []clinical.NamedValue `json:"named"`
	Issues []clinical.FieldIssue `json:"issues,omitempty"`
	Valid  bool                  `json:"valid"`
}

// AssessmentMessage 评估事件消息
type AssessmentMessage struct {
	RiskPercent float64   `json:"risk_percent"`
	Category    string    `json:"category"`
	Reassuring  bool      `json:"reassuring"`
	FactorCount int       `json:"factor_count"`
	ModelName   string    `json:"model_name"`
	Timestamp   time.Time `json:"timestamp"`
}

// StatusMessage 系统状态消息
type StatusMessage struct {
	ModelAvailable bool      `json:"model_available"`
	ModelName      string    `json:"model_name,omitempty"`
	Uptime         string    `json:"uptime"`
	Clients        int       `json:"clients"`
	Timestamp      time.Time `json:"timestamp"`
}

// HeartbeatMessage 心跳消息
type HeartbeatMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

// HubStats 预览中心统计
type HubStats struct {
	ConnectedClients int64         `json:"connected_clients"`
	MessagesSent     int64         `json:"messages_sent"`
	MessagesReceived int64         `json:"messages_received"`
	PreviewEchoes    int64         `json:"preview_echoes"`
	StartTime        time.Time     `json:"start_time"`
	LastMessageTime  time.Time     `json:"last_message_time"`
	Uptime           time.Duration `json:"uptime"`
}

// Client WebSocket客户端
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	clientID string
}

// PreviewHub 实时预览中心
type PreviewHub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	upgrader   websocket.Upgrader
	logger     *zap.Logger
	mu         sync.RWMutex
	running    bool
	ctx        context.Context
	cancel     context.CancelFunc
	stats      HubStats
}

// NewPreviewHub 创建实时预览中心
func NewPreviewHub(logger *zap.Logger) *PreviewHub {
	ctx, cancel := context.WithCancel(context.Background())

	return &PreviewHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 在生产环境中应该设置更严格的origin检查
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		stats: HubStats{
			StartTime: time.Now(),
		},
	}
}

// Start 启动预览中心
func (h *PreviewHub) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return fmt.Errorf("preview hub is already running")
	}
	h.running = true
	h.stats.StartTime = time.Now()

	go h.run()

	h.logger.Info("preview hub started")
	return nil
}

// Stop 停止预览中心
func (h *PreviewHub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return fmt.Errorf("preview hub is not running")
	}
	h.running = false
	h.cancel()

	h.logger.Info("preview hub stopped")
	return nil
}

// run 注册、注销与广播的事件循环
func (h *PreviewHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("preview client connected",
				zap.String("client_id", client.clientID),
				zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("preview client disconnected",
				zap.String("client_id", client.clientID),
				zap.Int("total", total))

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// HandleWebSocket 处理WebSocket连接
func (h *PreviewHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:     conn,
		send:     make(chan []byte, 256),
		clientID: generateClientID(),
	}

	h.register <- client

	go client.writePump(h)
	go client.readPump(h)
}

// Broadcast 广播消息给所有客户端
func (h *PreviewHub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
		h.updateSent()
	default:
		h.logger.Warn("preview broadcast queue is full, dropping message")
	}
}

// BroadcastAssessment 广播评估事件
func (h *PreviewHub) BroadcastAssessment(event AssessmentMessage) error {
	message, err := envelope(AssessmentEvent, event)
	if err != nil {
		return err
	}
	h.Broadcast(message)
	return nil
}

// BroadcastStatus 广播系统状态
func (h *PreviewHub) BroadcastStatus(status StatusMessage) error {
	status.Clients = h.ClientCount()
	message, err := envelope(SystemStatus, status)
	if err != nil {
		return err
	}
	h.Broadcast(message)
	return nil
}

// handleClientMessage 处理客户端消息
func (h *PreviewHub) handleClientMessage(c *Client, msg ClientMessage) {
	h.mu.Lock()
	h.stats.MessagesReceived++
	h.stats.LastMessageTime = time.Now()
	h.mu.Unlock()

	switch msg.Type {
	case "preview":
		h.echoPreview(c, msg.Values)
	case "ping":
		reply, err := envelope(Heartbeat, HeartbeatMessage{Timestamp: time.Now(), Status: "alive"})
		if err != nil {
			h.logger.Error("marshaling heartbeat", zap.Error(err))
			return
		}
		c.trySend(reply)
	default:
		h.logger.Debug("unknown client message type", zap.String("type", msg.Type))
	}
}

// echoPreview 解析客户端表单状态并回显特征记录，仅发给该客户端
func (h *PreviewHub) echoPreview(c *Client, values map[string]string) {
	form := url.Values{}
	for k, v := range values {
		form.Set(k, v)
	}

	rec, issues, err := clinical.ParseRecord(form)
	if err != nil {
		h.logger.Error("preview parse failed", zap.Error(err))
		return
	}

	preview := PreviewMessage{
		Record: rec,
		Named:  rec.Named(),
		Issues: issues,
		Valid:  len(issues) == 0,
	}
	message, err := envelope(PreviewEcho, preview)
	if err != nil {
		h.logger.Error("marshaling preview", zap.Error(err))
		return
	}
	c.trySend(message)

	h.mu.Lock()
	h.stats.PreviewEchoes++
	h.mu.Unlock()
}

// GetStats 获取统计信息
func (h *PreviewHub) GetStats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := h.stats
	stats.ConnectedClients = int64(len(h.clients))
	if h.running {
		stats.Uptime = time.Since(h.stats.StartTime)
	}
	return stats
}

// ClientCount 当前连接数
func (h *PreviewHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning 是否运行中
func (h *PreviewHub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

func (h *PreviewHub) updateSent() {
	h.mu.Lock()
	h.stats.MessagesSent++
	h.stats.LastMessageTime = time.Now()
	h.mu.Unlock()
}

func (c *Client) trySend(message []byte) {
	select {
	case c.send <- message:
	default:
	}
}

// writePump WebSocket写入泵
func (c *Client) writePump(h *PreviewHub) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("websocket write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump WebSocket读取泵
func (c *Client) readPump(h *PreviewHub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(8192)

	for {
		_, messageData, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			break
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(messageData, &clientMsg); err != nil {
			h.logger.Debug("unparseable client message", zap.Error(err))
			continue
		}

		h.handleClientMessage(c, clientMsg)
	}
}

func envelope(t MessageType, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %v", t, err)
	}
	return json.Marshal(Message{
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
		ID:        generateMessageID(),
	})
}

func generateClientID() string {
	return fmt.Sprintf("client_%d", time.Now().UnixNano())
}

func generateMessageID() string {
	return fmt.Sprintf("msg_%d", time.Now().UnixNano())
}
