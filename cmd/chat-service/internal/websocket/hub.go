package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"chatbackend/cmd/chat-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// messageTimeout 单条聊天消息的处理上限
const messageTimeout = 120 * time.Second

// ChatHandler 处理一条入站聊天消息并返回回复与 Token 用量
type ChatHandler interface {
	HandleChat(ctx context.Context, conversationID, userID, content string) (reply string, totalTokens, replyTokens int, err error)
}

// Hub WebSocket连接管理中心
type Hub struct {
	// 已注册的客户端
	Clients map[string]*Client

	// 客户端注册
	Register chan *Client

	// 客户端注销
	Unregister chan *Client

	// 按用户ID索引的客户端
	UserClients map[string]map[string]*Client

	// 聊天处理
	chat ChatHandler

	log *log.Helper

	mu sync.RWMutex

	// 连接限制配置
	maxConnectionsPerUser int
	maxTotalConnections   int
}

// HubConfig WebSocket Hub 配置
type HubConfig struct {
	MaxConnectionsPerUser int
	MaxTotalConnections   int
}

// NewHub 创建新的Hub
func NewHub(chat ChatHandler, config *HubConfig, logger log.Logger) *Hub {
	if config == nil {
		config = &HubConfig{
			MaxConnectionsPerUser: 5,
			MaxTotalConnections:   10000,
		}
	}

	return &Hub{
		Clients:               make(map[string]*Client),
		Register:              make(chan *Client),
		Unregister:            make(chan *Client),
		UserClients:           make(map[string]map[string]*Client),
		chat:                  chat,
		log:                   log.NewHelper(log.With(logger, "module", "ws-hub")),
		maxConnectionsPerUser: config.MaxConnectionsPerUser,
		maxTotalConnections:   config.MaxTotalConnections,
	}
}

// Run 运行Hub
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.log.Info("hub shutting down")
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)
		}
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.Clients) >= h.maxTotalConnections {
		h.log.Warnf("rejected connection: max total connections reached (%d)", h.maxTotalConnections)
		h.sendConnectionRejected(client, "Server connection limit reached")
		return
	}

	if userClients, ok := h.UserClients[client.UserID]; ok {
		if len(userClients) >= h.maxConnectionsPerUser {
			h.log.Warnf("user %s exceeded max connections (%d), closing oldest",
				client.UserID, h.maxConnectionsPerUser)
			h.closeOldestConnection(client.UserID)
		}
	}

	h.Clients[client.ID] = client

	if _, ok := h.UserClients[client.UserID]; !ok {
		h.UserClients[client.UserID] = make(map[string]*Client)
	}
	h.UserClients[client.UserID][client.ID] = client

	metrics.WebSocketConnectionsTotal.Inc()
	metrics.WebSocketConnectionsActive.Set(float64(len(h.Clients)))

	h.log.Infof("websocket client registered: client_id=%s, user_id=%s", client.ID, client.UserID)

	welcomeMsg := map[string]interface{}{
		"type":      MessageTypeWelcome,
		"client_id": client.ID,
		"timestamp": time.Now().Unix(),
	}
	msgBytes, _ := json.Marshal(welcomeMsg)
	client.SendMessage(msgBytes)
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.Clients[client.ID]; ok {
		delete(h.Clients, client.ID)
		close(client.Send)

		if userClients, ok := h.UserClients[client.UserID]; ok {
			delete(userClients, client.ID)
			if len(userClients) == 0 {
				delete(h.UserClients, client.UserID)
			}
		}

		metrics.WebSocketConnectionsActive.Set(float64(len(h.Clients)))

		h.log.Infof("websocket client unregistered: client_id=%s, user_id=%s",
			client.ID, client.UserID)
	}
}

// HandleMessage 处理客户端消息
func (h *Hub) HandleMessage(client *Client, message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		h.log.Errorf("invalid message format: %v", err)
		metrics.WebSocketErrors.WithLabelValues("invalid_format").Inc()
		h.sendError(client, "", "invalid message format")
		return
	}

	metrics.WebSocketMessagesReceived.WithLabelValues(msg.Type).Inc()

	switch msg.Type {
	case MessageTypePing:
		h.handlePing(client)
	case MessageTypeSendMessage:
		h.handleSendMessage(client, &msg)
	default:
		h.log.Warnf("unknown message type: %s", msg.Type)
		h.sendError(client, msg.ConversationID, "unknown message type: "+msg.Type)
	}
}

// handlePing 处理Ping
func (h *Hub) handlePing(client *Client) {
	pongMsg := map[string]interface{}{
		"type":      MessageTypePong,
		"timestamp": time.Now().Unix(),
	}
	msgBytes, _ := json.Marshal(pongMsg)
	client.SendMessage(msgBytes)
}

// handleSendMessage 处理聊天消息：走预算管理与模型补全，
// 回复以 response_chunk 事件返回，随后附带 token_usage 事件
func (h *Hub) handleSendMessage(client *Client, msg *Message) {
	if msg.ConversationID == "" || msg.Content == "" {
		h.sendError(client, msg.ConversationID, "conversation_id and content are required")
		return
	}

	// 异步处理，避免阻塞读循环
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), messageTimeout)
		defer cancel()

		reply, totalTokens, replyTokens, err := h.chat.HandleChat(ctx, msg.ConversationID, client.UserID, msg.Content)
		if err != nil {
			h.log.Errorf("chat message failed: conversation=%s: %v", msg.ConversationID, err)
			metrics.WebSocketErrors.WithLabelValues("chat_failed").Inc()
			h.sendError(client, msg.ConversationID, err.Error())
			return
		}

		chunkBytes, _ := json.Marshal(&ResponseChunkEvent{
			Type:           MessageTypeResponseChunk,
			ConversationID: msg.ConversationID,
			Content:        reply,
			Finished:       true,
			Timestamp:      time.Now().Unix(),
		})
		client.SendMessage(chunkBytes)

		usageBytes, _ := json.Marshal(&TokenUsageEvent{
			Type:           MessageTypeTokenUsage,
			ConversationID: msg.ConversationID,
			TotalTokens:    totalTokens,
			ReplyTokens:    replyTokens,
			Timestamp:      time.Now().Unix(),
		})
		client.SendMessage(usageBytes)
	}()
}

// sendError 发送错误事件
func (h *Hub) sendError(client *Client, conversationID, message string) {
	msgBytes, _ := json.Marshal(&ErrorEvent{
		Type:           MessageTypeError,
		ConversationID: conversationID,
		Message:        message,
		Timestamp:      time.Now().Unix(),
	})
	client.SendMessage(msgBytes)
}

// GetClientCount 获取在线客户端数量
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.Clients)
}

// sendConnectionRejected 发送连接拒绝消息
func (h *Hub) sendConnectionRejected(client *Client, reason string) {
	rejectMsg := map[string]interface{}{
		"type":      "connection_rejected",
		"reason":    reason,
		"timestamp": time.Now().Unix(),
	}
	msgBytes, _ := json.Marshal(rejectMsg)
	client.SendMessage(msgBytes)

	go func() {
		time.Sleep(time.Second)
		client.Close()
	}()
}

// closeOldestConnection 关闭用户最旧的连接
func (h *Hub) closeOldestConnection(userID string) {
	userClients, ok := h.UserClients[userID]
	if !ok {
		return
	}

	var oldestClient *Client
	var oldestTime time.Time

	for _, client := range userClients {
		if oldestClient == nil || client.ConnectedAt.Before(oldestTime) {
			oldestClient = client
			oldestTime = client.ConnectedAt
		}
	}

	if oldestClient != nil {
		h.log.Infof("closing oldest connection for user %s: client_id=%s", userID, oldestClient.ID)
		go func() {
			time.Sleep(time.Second)
			oldestClient.Close()
		}()
	}
}
