package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message 消息实体（写入对话后不可变）
type Message struct {
	ID             string
	ConversationID string
	Role           MessageRole
	Content        string
	Tokens         int
	CreatedAt      time.Time
}

// MessageRole 消息角色
type MessageRole string

const (
	RoleUser      MessageRole = "user"      // 用户
	RoleAssistant MessageRole = "assistant" // 助手
	RoleSystem    MessageRole = "system"    // 系统（含摘要消息）
)

// ValidRole 检查角色是否合法
func ValidRole(role MessageRole) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// NewMessage 创建消息
func NewMessage(conversationID string, role MessageRole, content string) *Message {
	return &Message{
		ID:             "msg_" + uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	}
}

// SetTokens 设置该消息在固定分词器下的 Token 数
func (m *Message) SetTokens(tokens int) {
	m.Tokens = tokens
}
