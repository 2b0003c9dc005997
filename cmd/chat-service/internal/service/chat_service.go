package service

import (
	"context"

	"chatbackend/cmd/chat-service/internal/biz"
	"chatbackend/cmd/chat-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// ChatService 聊天服务门面，聚合聊天、对话管理和文件分析用例
type ChatService struct {
	chat         *biz.ChatUsecase
	conversation *biz.ConversationUsecase
	file         *biz.FileUsecase
	cfg          domain.TokenBudgetConfig
	log          *log.Helper
}

// NewChatService 创建聊天服务
func NewChatService(
	chat *biz.ChatUsecase,
	conversation *biz.ConversationUsecase,
	file *biz.FileUsecase,
	cfg domain.TokenBudgetConfig,
	logger log.Logger,
) *ChatService {
	return &ChatService{
		chat:         chat,
		conversation: conversation,
		file:         file,
		cfg:          cfg,
		log:          log.NewHelper(log.With(logger, "module", "chat-service")),
	}
}

// SendMessage 发送用户消息并返回助手回复
func (s *ChatService) SendMessage(ctx context.Context, conversationID, userID, content string) (*biz.ChatReply, error) {
	return s.chat.SendMessage(ctx, conversationID, userID, content)
}

// HandleChat 处理 WebSocket 入站聊天消息
func (s *ChatService) HandleChat(ctx context.Context, conversationID, userID, content string) (string, int, int, error) {
	reply, err := s.chat.SendMessage(ctx, conversationID, userID, content)
	if err != nil {
		return "", 0, 0, err
	}
	return reply.Reply, reply.TotalTokens, reply.ReplyTokens, nil
}

// StartConversation 新建对话
func (s *ChatService) StartConversation(ctx context.Context, tenantID, userID string) (*domain.Conversation, error) {
	return s.conversation.StartConversation(ctx, tenantID, userID)
}

// ResetConversation 清空对话历史
func (s *ChatService) ResetConversation(ctx context.Context, id, userID string) error {
	return s.conversation.ResetConversation(ctx, id, userID)
}

// ListConversations 列出用户的对话
func (s *ChatService) ListConversations(ctx context.Context, tenantID, userID string, limit, offset int) ([]*domain.Conversation, int, error) {
	return s.conversation.ListConversations(ctx, tenantID, userID, limit, offset)
}

// GetTranscript 加载对话消息
func (s *ChatService) GetTranscript(ctx context.Context, id, userID string) ([]*domain.Message, error) {
	return s.conversation.GetTranscript(ctx, id, userID)
}

// SearchConversations 检索对话
func (s *ChatService) SearchConversations(ctx context.Context, userID, query string, limit int) ([]*domain.Conversation, error) {
	return s.conversation.SearchConversations(ctx, userID, query, limit)
}

// AddFewShotExample 追加 few-shot 示例
func (s *ChatService) AddFewShotExample(ctx context.Context, id, userID, userPrompt, assistantResponse string) error {
	return s.conversation.AddFewShotExample(ctx, id, userID, userPrompt, assistantResponse)
}

// ExportConversation 导出对话历史
func (s *ChatService) ExportConversation(ctx context.Context, id, userID string) (string, error) {
	return s.conversation.ExportConversation(ctx, id, userID)
}

// AnalyzeUpload 分块分析上传的文档
func (s *ChatService) AnalyzeUpload(ctx context.Context, filename string, size int64, content []byte) (string, error) {
	return s.file.AnalyzeUpload(ctx, filename, size, content)
}

// BudgetConfig 返回生效的 Token 预算配置
func (s *ChatService) BudgetConfig() domain.TokenBudgetConfig {
	return s.cfg
}
