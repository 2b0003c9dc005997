package data

import (
	"context"
	"time"

	"chatbackend/cmd/chat-service/internal/domain"

	"gorm.io/gorm"
)

// MessageDO 消息数据对象
type MessageDO struct {
	ID             string `gorm:"primaryKey"`
	ConversationID string `gorm:"index"`
	Role           string
	Content        string `gorm:"type:text"`
	Tokens         int
	CreatedAt      time.Time `gorm:"index"`
}

// TableName 指定表名
func (MessageDO) TableName() string {
	return "chat.messages"
}

// MessageRepository 消息仓储实现
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建消息仓储
func NewMessageRepository(db *gorm.DB) domain.MessageRepository {
	return &MessageRepository{
		db: db,
	}
}

// CreateMessage 写入单条消息
func (r *MessageRepository) CreateMessage(ctx context.Context, message *domain.Message) error {
	do := r.toDataObject(message)
	return r.db.WithContext(ctx).Create(do).Error
}

// CreateMessages 同一事务内写入一批消息
func (r *MessageRepository) CreateMessages(ctx context.Context, messages []*domain.Message) error {
	if len(messages) == 0 {
		return nil
	}

	dos := make([]*MessageDO, len(messages))
	for i, msg := range messages {
		dos[i] = r.toDataObject(msg)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(dos).Error
	})
}

// ListMessages 按时间升序列出对话的消息
func (r *MessageRepository) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]*domain.Message, int, error) {
	var dos []MessageDO
	var total int64

	db := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)

	if err := db.Model(&MessageDO{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Order("created_at ASC").Limit(limit).Offset(offset).Find(&dos).Error; err != nil {
		return nil, 0, err
	}

	messages := make([]*domain.Message, len(dos))
	for i, do := range dos {
		messages[i] = r.toDomain(&do)
	}

	return messages, int(total), nil
}

// DeleteMessages 删除对话的全部消息
func (r *MessageRepository) DeleteMessages(ctx context.Context, conversationID string) error {
	return r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Delete(&MessageDO{}).Error
}

// toDataObject 转换为数据对象
func (r *MessageRepository) toDataObject(message *domain.Message) *MessageDO {
	return &MessageDO{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		Role:           string(message.Role),
		Content:        message.Content,
		Tokens:         message.Tokens,
		CreatedAt:      message.CreatedAt,
	}
}

// toDomain 转换为领域对象
func (r *MessageRepository) toDomain(do *MessageDO) *domain.Message {
	return &domain.Message{
		ID:             do.ID,
		ConversationID: do.ConversationID,
		Role:           domain.MessageRole(do.Role),
		Content:        do.Content,
		Tokens:         do.Tokens,
		CreatedAt:      do.CreatedAt,
	}
}
