package data

import (
	"context"
	"errors"
	"time"

	"chatbackend/cmd/chat-service/internal/domain"

	"gorm.io/gorm"
)

// ConversationDO 对话数据对象
type ConversationDO struct {
	ID               string `gorm:"primaryKey"`
	TenantID         string `gorm:"index"`
	UserID           string `gorm:"index"`
	Status           string
	ConversationText string `gorm:"type:text"`
	TokenTotal       int
	MessageCount     int
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastActiveAt     time.Time `gorm:"index"`
}

// TableName 指定表名
func (ConversationDO) TableName() string {
	return "chat.conversations"
}

// ConversationRepository 对话仓储实现
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建对话仓储
func NewConversationRepository(db *gorm.DB) domain.ConversationRepository {
	return &ConversationRepository{
		db: db,
	}
}

// CreateConversation 创建对话
func (r *ConversationRepository) CreateConversation(ctx context.Context, conversation *domain.Conversation) error {
	do := r.toDataObject(conversation)
	return r.db.WithContext(ctx).Create(do).Error
}

// GetConversation 获取对话（已删除的视为不存在）
func (r *ConversationRepository) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var do ConversationDO
	if err := r.db.WithContext(ctx).Where("id = ? AND status != ?", id, string(domain.StatusDeleted)).First(&do).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}

	return r.toDomain(&do), nil
}

// UpdateConversation 更新对话
func (r *ConversationRepository) UpdateConversation(ctx context.Context, conversation *domain.Conversation) error {
	do := r.toDataObject(conversation)
	return r.db.WithContext(ctx).Save(do).Error
}

// ListConversations 列出对话，最近活跃优先
func (r *ConversationRepository) ListConversations(ctx context.Context, tenantID, userID string, limit, offset int) ([]*domain.Conversation, int, error) {
	var dos []ConversationDO
	var total int64

	db := r.db.WithContext(ctx).Where("tenant_id = ? AND user_id = ? AND status != ?", tenantID, userID, string(domain.StatusDeleted))

	if err := db.Model(&ConversationDO{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Order("last_active_at DESC").Limit(limit).Offset(offset).Find(&dos).Error; err != nil {
		return nil, 0, err
	}

	conversations := make([]*domain.Conversation, len(dos))
	for i, do := range dos {
		conversations[i] = r.toDomain(&do)
	}

	return conversations, int(total), nil
}

// SearchConversations 在对话全文上做大小写不敏感的子串检索
func (r *ConversationRepository) SearchConversations(ctx context.Context, userID, query string, limit int) ([]*domain.Conversation, error) {
	var dos []ConversationDO

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status != ? AND conversation_text ILIKE ?",
			userID, string(domain.StatusDeleted), "%"+query+"%").
		Order("last_active_at DESC").
		Limit(limit).
		Find(&dos).Error
	if err != nil {
		return nil, err
	}

	conversations := make([]*domain.Conversation, len(dos))
	for i, do := range dos {
		conversations[i] = r.toDomain(&do)
	}

	return conversations, nil
}

// toDataObject 转换为数据对象
func (r *ConversationRepository) toDataObject(conversation *domain.Conversation) *ConversationDO {
	return &ConversationDO{
		ID:               conversation.ID,
		TenantID:         conversation.TenantID,
		UserID:           conversation.UserID,
		Status:           string(conversation.Status),
		ConversationText: conversation.ConversationText,
		TokenTotal:       conversation.TokenTotal,
		MessageCount:     conversation.MessageCount,
		CreatedAt:        conversation.CreatedAt,
		UpdatedAt:        conversation.UpdatedAt,
		LastActiveAt:     conversation.LastActiveAt,
	}
}

// toDomain 转换为领域对象
func (r *ConversationRepository) toDomain(do *ConversationDO) *domain.Conversation {
	return &domain.Conversation{
		ID:               do.ID,
		TenantID:         do.TenantID,
		UserID:           do.UserID,
		Status:           domain.ConversationStatus(do.Status),
		ConversationText: do.ConversationText,
		TokenTotal:       do.TokenTotal,
		MessageCount:     do.MessageCount,
		CreatedAt:        do.CreatedAt,
		UpdatedAt:        do.UpdatedAt,
		LastActiveAt:     do.LastActiveAt,
	}
}
