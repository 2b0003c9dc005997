package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chatbackend/cmd/chat-service/internal/domain"
	"chatbackend/cmd/chat-service/internal/tokenizer"

	"github.com/go-kratos/kratos/v2/log"
)

// ConversationUsecase 对话管理用例
type ConversationUsecase struct {
	conversationRepo domain.ConversationRepository
	messageRepo      domain.MessageRepository
	cache            domain.TranscriptCache
	counter          tokenizer.Counter
	exportDir        string
	log              *log.Helper
}

// NewConversationUsecase 创建对话管理用例
func NewConversationUsecase(
	conversationRepo domain.ConversationRepository,
	messageRepo domain.MessageRepository,
	cache domain.TranscriptCache,
	counter tokenizer.Counter,
	exportDir string,
	logger log.Logger,
) *ConversationUsecase {
	return &ConversationUsecase{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		cache:            cache,
		counter:          counter,
		exportDir:        exportDir,
		log:              log.NewHelper(log.With(logger, "module", "conversation-usecase")),
	}
}

// StartConversation 新建对话
func (uc *ConversationUsecase) StartConversation(ctx context.Context, tenantID, userID string) (*domain.Conversation, error) {
	conversation := domain.NewConversation(tenantID, userID)
	if err := uc.conversationRepo.CreateConversation(ctx, conversation); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	uc.log.WithContext(ctx).Infof("conversation started: id=%s user=%s", conversation.ID, userID)
	return conversation, nil
}

// ResetConversation 清空对话的消息与派生字段，对话本身保留
func (uc *ConversationUsecase) ResetConversation(ctx context.Context, id, userID string) error {
	conversation, err := uc.getOwned(ctx, id, userID)
	if err != nil {
		return err
	}

	if err := uc.messageRepo.DeleteMessages(ctx, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}

	conversation.Reset()
	if err := uc.conversationRepo.UpdateConversation(ctx, conversation); err != nil {
		return err
	}

	if err := uc.cache.DeleteTranscript(ctx, id); err != nil {
		uc.log.WithContext(ctx).Warnf("failed to invalidate transcript cache: %v", err)
	}
	return nil
}

// ListConversations 列出用户的对话，最近活跃优先
func (uc *ConversationUsecase) ListConversations(ctx context.Context, tenantID, userID string, limit, offset int) ([]*domain.Conversation, int, error) {
	return uc.conversationRepo.ListConversations(ctx, tenantID, userID, limit, offset)
}

// GetTranscript 加载对话的完整消息序列
func (uc *ConversationUsecase) GetTranscript(ctx context.Context, id, userID string) ([]*domain.Message, error) {
	if _, err := uc.getOwned(ctx, id, userID); err != nil {
		return nil, err
	}
	messages, _, err := uc.messageRepo.ListMessages(ctx, id, 1000, 0)
	return messages, err
}

// SearchConversations 在用户的对话文本上做子串检索
func (uc *ConversationUsecase) SearchConversations(ctx context.Context, userID, query string, limit int) ([]*domain.Conversation, error) {
	return uc.conversationRepo.SearchConversations(ctx, userID, query, limit)
}

// AddFewShotExample 把一对 user/assistant 示例追加进对话
func (uc *ConversationUsecase) AddFewShotExample(ctx context.Context, id, userID, userPrompt, assistantResponse string) error {
	conversation, err := uc.getOwned(ctx, id, userID)
	if err != nil {
		return err
	}

	userMsg := domain.NewMessage(id, domain.RoleUser, userPrompt)
	userMsg.SetTokens(uc.counter.CountTokens(userPrompt))
	assistantMsg := domain.NewMessage(id, domain.RoleAssistant, assistantResponse)
	assistantMsg.SetTokens(uc.counter.CountTokens(assistantResponse))

	if err := uc.messageRepo.CreateMessages(ctx, []*domain.Message{userMsg, assistantMsg}); err != nil {
		return fmt.Errorf("create example messages: %w", err)
	}

	// 重建派生字段
	messages, _, err := uc.messageRepo.ListMessages(ctx, id, 1000, 0)
	if err != nil {
		return err
	}
	transcript := domain.NewTranscript(id)
	for _, msg := range messages {
		transcript.Append(msg)
	}
	conversation.SyncFromTranscript(transcript)
	if err := uc.conversationRepo.UpdateConversation(ctx, conversation); err != nil {
		return err
	}

	if err := uc.cache.DeleteTranscript(ctx, id); err != nil {
		uc.log.WithContext(ctx).Warnf("failed to invalidate transcript cache: %v", err)
	}
	return nil
}

// conversationExport 导出文件结构
type conversationExport struct {
	ConversationID string            `json:"conversation_id"`
	UserID         string            `json:"user_id"`
	ExportedAt     time.Time         `json:"exported_at"`
	Messages       []*domain.Message `json:"messages"`
}

// ExportConversation 把对话快照写入导出目录，返回文件路径
func (uc *ConversationUsecase) ExportConversation(ctx context.Context, id, userID string) (string, error) {
	if _, err := uc.getOwned(ctx, id, userID); err != nil {
		return "", err
	}

	messages, _, err := uc.messageRepo.ListMessages(ctx, id, 10000, 0)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(uc.exportDir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s_conversation_history.json", time.Now().Format("20060102_150405"), id)
	path := filepath.Join(uc.exportDir, name)

	data, err := json.MarshalIndent(&conversationExport{
		ConversationID: id,
		UserID:         userID,
		ExportedAt:     time.Now(),
		Messages:       messages,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal export: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}

	uc.log.WithContext(ctx).Infof("conversation exported: %s", path)
	return path, nil
}

// getOwned 取对话并校验归属
func (uc *ConversationUsecase) getOwned(ctx context.Context, id, userID string) (*domain.Conversation, error) {
	conversation, err := uc.conversationRepo.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conversation.UserID != userID {
		return nil, domain.ErrUnauthorized
	}
	return conversation, nil
}
