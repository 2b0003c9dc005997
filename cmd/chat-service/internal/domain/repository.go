package domain

import (
	"context"
	"time"
)

// ConversationRepository 对话仓储
type ConversationRepository interface {
	CreateConversation(ctx context.Context, conversation *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	UpdateConversation(ctx context.Context, conversation *Conversation) error
	ListConversations(ctx context.Context, tenantID, userID string, limit, offset int) ([]*Conversation, int, error)
	SearchConversations(ctx context.Context, userID, query string, limit int) ([]*Conversation, error)
}

// MessageRepository 消息仓储
type MessageRepository interface {
	CreateMessage(ctx context.Context, message *Message) error
	CreateMessages(ctx context.Context, messages []*Message) error
	ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]*Message, int, error)
	DeleteMessages(ctx context.Context, conversationID string) error
}

// TranscriptCache 转录缓存（持久仓储之前的一层）
type TranscriptCache interface {
	GetTranscript(ctx context.Context, conversationID string) (*Transcript, error)
	SetTranscript(ctx context.Context, transcript *Transcript, ttl time.Duration) error
	DeleteTranscript(ctx context.Context, conversationID string) error
}
