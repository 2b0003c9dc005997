package biz

import (
	"context"
	"sync"
	"time"

	"chatbackend/cmd/chat-service/internal/domain"
	"chatbackend/cmd/chat-service/internal/metrics"
	"chatbackend/cmd/chat-service/internal/tokenizer"

	"github.com/go-kratos/kratos/v2/log"
)

// transcriptCacheTTL 转录缓存存活时间
const transcriptCacheTTL = 24 * time.Hour

// MessageEvent 消息落库事件（供下游分析消费）
type MessageEvent struct {
	ConversationID string    `json:"conversation_id"`
	TenantID       string    `json:"tenant_id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	Tokens         int       `json:"tokens"`
	CreatedAt      time.Time `json:"created_at"`
}

// EventPublisher 事件发布
type EventPublisher interface {
	PublishMessageEvent(ctx context.Context, event *MessageEvent) error
}

// ChatReply 一次聊天交互的结果
type ChatReply struct {
	Reply       string
	TotalTokens int
	ReplyTokens int
}

// ChatUsecase 聊天用例：加载转录 → 预算管理 → 模型补全 → 落库。
// 同一对话上的操作按对话 ID 串行化，两条并发消息不会破坏 Token 核算。
type ChatUsecase struct {
	conversationRepo domain.ConversationRepository
	messageRepo      domain.MessageRepository
	cache            domain.TranscriptCache
	budget           *TokenBudgetManager
	client           CompletionClient
	counter          tokenizer.Counter
	publisher        EventPublisher // 可为 nil
	cfg              domain.TokenBudgetConfig
	locks            sync.Map // conversationID -> *sync.Mutex
	log              *log.Helper
}

// NewChatUsecase 创建聊天用例
func NewChatUsecase(
	conversationRepo domain.ConversationRepository,
	messageRepo domain.MessageRepository,
	cache domain.TranscriptCache,
	budget *TokenBudgetManager,
	client CompletionClient,
	counter tokenizer.Counter,
	publisher EventPublisher,
	cfg domain.TokenBudgetConfig,
	logger log.Logger,
) *ChatUsecase {
	return &ChatUsecase{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		cache:            cache,
		budget:           budget,
		client:           client,
		counter:          counter,
		publisher:        publisher,
		cfg:              cfg,
		log:              log.NewHelper(log.With(logger, "module", "chat-usecase")),
	}
}

// SendMessage 处理一条入站用户消息并返回助手回复。
// 补全失败时对话状态保持调用前原样（不落库、不写缓存）。
func (uc *ChatUsecase) SendMessage(ctx context.Context, conversationID, userID, content string) (*ChatReply, error) {
	start := time.Now()
	unlock := uc.lockConversation(conversationID)
	defer unlock()

	conversation, err := uc.conversationRepo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conversation.UserID != userID {
		return nil, domain.ErrUnauthorized
	}

	transcript, err := uc.loadTranscript(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	managed, total, err := uc.budget.Manage(ctx, transcript, content)
	if err != nil {
		return nil, err
	}

	reply, err := uc.client.Complete(ctx, managed.Messages, uc.cfg.ReplyReserveTokens, 0.7)
	if err != nil {
		metrics.ChatMessagesTotal.WithLabelValues("completion_error").Inc()
		return nil, err
	}

	// 预算管理把新用户消息追加在末尾
	userMsg := managed.Messages[len(managed.Messages)-1]

	assistantMsg := domain.NewMessage(conversationID, domain.RoleAssistant, reply)
	assistantMsg.SetTokens(uc.counter.CountTokens(reply))
	managed.Append(assistantMsg)

	if err := uc.messageRepo.CreateMessages(ctx, []*domain.Message{userMsg, assistantMsg}); err != nil {
		return nil, err
	}

	conversation.SyncFromTranscript(managed)
	if err := uc.conversationRepo.UpdateConversation(ctx, conversation); err != nil {
		return nil, err
	}

	if err := uc.cache.SetTranscript(ctx, managed, transcriptCacheTTL); err != nil {
		uc.log.WithContext(ctx).Warnf("failed to cache transcript: %v", err)
	}

	uc.publishEvents(ctx, conversation, userMsg, assistantMsg)

	metrics.ChatMessagesTotal.WithLabelValues("ok").Inc()
	metrics.ChatMessageDuration.Observe(time.Since(start).Seconds())
	metrics.TranscriptTokensTotal.Observe(float64(managed.TotalTokens))

	return &ChatReply{
		Reply:       reply,
		TotalTokens: total,
		ReplyTokens: assistantMsg.Tokens,
	}, nil
}

// loadTranscript 取转录：缓存优先，未命中时从消息仓储重建
func (uc *ChatUsecase) loadTranscript(ctx context.Context, conversationID string) (*domain.Transcript, error) {
	transcript, err := uc.cache.GetTranscript(ctx, conversationID)
	if err == nil && transcript != nil {
		metrics.TranscriptCacheHits.Inc()
		return transcript, nil
	}
	if err != nil {
		uc.log.WithContext(ctx).Warnf("transcript cache read failed, rebuilding from store: %v", err)
	}
	metrics.TranscriptCacheMisses.Inc()

	messages, _, err := uc.messageRepo.ListMessages(ctx, conversationID, 1000, 0)
	if err != nil {
		return nil, err
	}

	transcript = domain.NewTranscript(conversationID)
	for _, msg := range messages {
		if msg.Tokens == 0 {
			msg.SetTokens(uc.counter.CountTokens(msg.Content))
		}
		transcript.Append(msg)
	}
	return transcript, nil
}

// publishEvents 尽力而为地发布消息事件，失败只记日志
func (uc *ChatUsecase) publishEvents(ctx context.Context, conversation *domain.Conversation, messages ...*domain.Message) {
	if uc.publisher == nil {
		return
	}
	for _, msg := range messages {
		event := &MessageEvent{
			ConversationID: conversation.ID,
			TenantID:       conversation.TenantID,
			UserID:         conversation.UserID,
			Role:           string(msg.Role),
			Tokens:         msg.Tokens,
			CreatedAt:      msg.CreatedAt,
		}
		if err := uc.publisher.PublishMessageEvent(ctx, event); err != nil {
			uc.log.WithContext(ctx).Warnf("failed to publish message event: %v", err)
		}
	}
}

func (uc *ChatUsecase) lockConversation(conversationID string) func() {
	actual, _ := uc.locks.LoadOrStore(conversationID, &sync.Mutex{})
	mu := actual.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
