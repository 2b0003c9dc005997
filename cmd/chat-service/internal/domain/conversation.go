package domain

import (
	"time"

	"github.com/google/uuid"
)

// Conversation 对话聚合根
type Conversation struct {
	ID               string
	TenantID         string
	UserID           string
	Status           ConversationStatus
	ConversationText string // 派生文本，用于检索
	TokenTotal       int
	MessageCount     int
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastActiveAt     time.Time
}

// ConversationStatus 对话状态
type ConversationStatus string

const (
	StatusActive  ConversationStatus = "active"  // 活跃
	StatusDeleted ConversationStatus = "deleted" // 删除
)

// NewConversation 创建对话
func NewConversation(tenantID, userID string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		UserID:       userID,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActiveAt: now,
	}
}

// Reset 清空对话内容（保留对话本身）
func (c *Conversation) Reset() {
	c.ConversationText = ""
	c.TokenTotal = 0
	c.MessageCount = 0
	c.UpdateActivity()
}

// UpdateActivity 更新活跃时间
func (c *Conversation) UpdateActivity() {
	now := time.Now()
	c.LastActiveAt = now
	c.UpdatedAt = now
}

// SyncFromTranscript 用转录回填派生字段
func (c *Conversation) SyncFromTranscript(t *Transcript) {
	c.ConversationText = t.Text()
	c.TokenTotal = t.TotalTokens
	c.MessageCount = t.Len()
	c.UpdateActivity()
}
