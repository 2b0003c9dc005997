package biz

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatbackend/cmd/chat-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConversationRepo 内存对话仓储
type fakeConversationRepo struct {
	conversations map[string]*domain.Conversation
	updateCalls   int
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{conversations: make(map[string]*domain.Conversation)}
}

func (r *fakeConversationRepo) CreateConversation(ctx context.Context, c *domain.Conversation) error {
	r.conversations[c.ID] = c
	return nil
}

func (r *fakeConversationRepo) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	c, ok := r.conversations[id]
	if !ok || c.Status == domain.StatusDeleted {
		return nil, domain.ErrConversationNotFound
	}
	return c, nil
}

func (r *fakeConversationRepo) UpdateConversation(ctx context.Context, c *domain.Conversation) error {
	r.updateCalls++
	r.conversations[c.ID] = c
	return nil
}

func (r *fakeConversationRepo) ListConversations(ctx context.Context, tenantID, userID string, limit, offset int) ([]*domain.Conversation, int, error) {
	var out []*domain.Conversation
	for _, c := range r.conversations {
		if c.TenantID == tenantID && c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (r *fakeConversationRepo) SearchConversations(ctx context.Context, userID, query string, limit int) ([]*domain.Conversation, error) {
	return nil, nil
}

// fakeMessageRepo 内存消息仓储
type fakeMessageRepo struct {
	messages map[string][]*domain.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[string][]*domain.Message)}
}

func (r *fakeMessageRepo) CreateMessage(ctx context.Context, m *domain.Message) error {
	r.messages[m.ConversationID] = append(r.messages[m.ConversationID], m)
	return nil
}

func (r *fakeMessageRepo) CreateMessages(ctx context.Context, msgs []*domain.Message) error {
	for _, m := range msgs {
		r.messages[m.ConversationID] = append(r.messages[m.ConversationID], m)
	}
	return nil
}

func (r *fakeMessageRepo) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]*domain.Message, int, error) {
	msgs := r.messages[conversationID]
	return msgs, len(msgs), nil
}

func (r *fakeMessageRepo) DeleteMessages(ctx context.Context, conversationID string) error {
	delete(r.messages, conversationID)
	return nil
}

// fakeTranscriptCache 内存转录缓存
type fakeTranscriptCache struct {
	transcripts map[string]*domain.Transcript
}

func newFakeTranscriptCache() *fakeTranscriptCache {
	return &fakeTranscriptCache{transcripts: make(map[string]*domain.Transcript)}
}

func (c *fakeTranscriptCache) GetTranscript(ctx context.Context, conversationID string) (*domain.Transcript, error) {
	return c.transcripts[conversationID], nil
}

func (c *fakeTranscriptCache) SetTranscript(ctx context.Context, t *domain.Transcript, ttl time.Duration) error {
	c.transcripts[t.ConversationID] = t
	return nil
}

func (c *fakeTranscriptCache) DeleteTranscript(ctx context.Context, conversationID string) error {
	delete(c.transcripts, conversationID)
	return nil
}

type chatFixture struct {
	conversationRepo *fakeConversationRepo
	messageRepo      *fakeMessageRepo
	cache            *fakeTranscriptCache
	client           *MockCompletionClient
	usecase          *ChatUsecase
	conversation     *domain.Conversation
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()

	cfg := domain.TokenBudgetConfig{MaxTokens: 1000, ReplyReserveTokens: 100, ChunkSizeTokens: 50, SummaryReserveTokens: 50}
	conversationRepo := newFakeConversationRepo()
	messageRepo := newFakeMessageRepo()
	cache := newFakeTranscriptCache()
	client := &MockCompletionClient{}

	budget := NewTokenBudgetManager(runeCounter{}, cfg, nil, log.DefaultLogger)
	usecase := NewChatUsecase(conversationRepo, messageRepo, cache, budget, client, runeCounter{}, nil, cfg, log.DefaultLogger)

	conversation := domain.NewConversation("tenant-1", "user-1")
	require.NoError(t, conversationRepo.CreateConversation(context.Background(), conversation))

	return &chatFixture{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		cache:            cache,
		client:           client,
		usecase:          usecase,
		conversation:     conversation,
	}
}

func TestSendMessage_PersistsUserAndAssistantTogether(t *testing.T) {
	f := newChatFixture(t)
	f.client.CompleteFunc = func(ctx context.Context, messages []*domain.Message, maxReplyTokens int, temperature float64) (string, error) {
		return "assistant reply", nil
	}

	reply, err := f.usecase.SendMessage(context.Background(), f.conversation.ID, "user-1", "hello there")

	require.NoError(t, err)
	assert.Equal(t, "assistant reply", reply.Reply)

	// 用户消息与助手回复一并落库
	stored := f.messageRepo.messages[f.conversation.ID]
	require.Len(t, stored, 2)
	assert.Equal(t, domain.RoleUser, stored[0].Role)
	assert.Equal(t, "hello there", stored[0].Content)
	assert.Equal(t, domain.RoleAssistant, stored[1].Role)

	// 对话派生字段同步
	assert.Equal(t, 2, f.conversation.MessageCount)
	assert.Contains(t, f.conversation.ConversationText, "hello there")

	// 转录缓存更新
	cached := f.cache.transcripts[f.conversation.ID]
	require.NotNil(t, cached)
	assert.Equal(t, 2, cached.Len())
}

func TestSendMessage_CompletionFailureLeavesStateUntouched(t *testing.T) {
	f := newChatFixture(t)
	f.client.CompleteFunc = func(ctx context.Context, messages []*domain.Message, maxReplyTokens int, temperature float64) (string, error) {
		return "", domain.ErrCompletionUnavailable
	}

	_, err := f.usecase.SendMessage(context.Background(), f.conversation.ID, "user-1", "hello")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCompletionUnavailable)

	// 失败路径：不落库、不写缓存、对话字段不变
	assert.Empty(t, f.messageRepo.messages[f.conversation.ID])
	assert.Nil(t, f.cache.transcripts[f.conversation.ID])
	assert.Equal(t, 0, f.conversation.MessageCount)
	assert.Equal(t, 0, f.conversationRepo.updateCalls)
}

func TestSendMessage_RejectsForeignUser(t *testing.T) {
	f := newChatFixture(t)

	_, err := f.usecase.SendMessage(context.Background(), f.conversation.ID, "other-user", "hello")

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, 0, f.client.Calls)
}

func TestSendMessage_MessageTooLargePropagates(t *testing.T) {
	f := newChatFixture(t)

	// 900 Token 上限（1000-100），1000 字符消息无法装入
	_, err := f.usecase.SendMessage(context.Background(), f.conversation.ID, "user-1", string(make([]rune, 1000)))

	assert.ErrorIs(t, err, domain.ErrMessageTooLarge)
	assert.Equal(t, 0, f.client.Calls)
	assert.Empty(t, f.messageRepo.messages[f.conversation.ID])
}

func TestSendMessage_RebuildsTranscriptFromStoreOnCacheMiss(t *testing.T) {
	f := newChatFixture(t)

	prior := domain.NewMessage(f.conversation.ID, domain.RoleUser, "earlier question")
	prior.SetTokens(16)
	require.NoError(t, f.messageRepo.CreateMessage(context.Background(), prior))

	f.client.CompleteFunc = func(ctx context.Context, messages []*domain.Message, maxReplyTokens int, temperature float64) (string, error) {
		// 历史消息从仓储重建并传给模型
		require.GreaterOrEqual(t, len(messages), 2)
		assert.Equal(t, "earlier question", messages[0].Content)
		return "reply", nil
	}

	_, err := f.usecase.SendMessage(context.Background(), f.conversation.ID, "user-1", "next question")
	require.NoError(t, err)
}

func TestSendMessage_UnknownConversation(t *testing.T) {
	f := newChatFixture(t)

	_, err := f.usecase.SendMessage(context.Background(), "missing", "user-1", "hello")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestSendMessage_PublishesEvents(t *testing.T) {
	f := newChatFixture(t)

	var events []*MessageEvent
	publisher := publisherFunc(func(ctx context.Context, event *MessageEvent) error {
		events = append(events, event)
		return nil
	})
	f.usecase.publisher = publisher

	_, err := f.usecase.SendMessage(context.Background(), f.conversation.ID, "user-1", "hello")
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, string(domain.RoleUser), events[0].Role)
	assert.Equal(t, string(domain.RoleAssistant), events[1].Role)
	assert.Equal(t, f.conversation.ID, events[0].ConversationID)
}

// publisherFunc 函数式事件发布器
type publisherFunc func(ctx context.Context, event *MessageEvent) error

func (f publisherFunc) PublishMessageEvent(ctx context.Context, event *MessageEvent) error {
	return f(ctx, event)
}

func TestSendMessage_EventPublishFailureIsNonFatal(t *testing.T) {
	f := newChatFixture(t)
	f.usecase.publisher = publisherFunc(func(ctx context.Context, event *MessageEvent) error {
		return errors.New("broker down")
	})

	reply, err := f.usecase.SendMessage(context.Background(), f.conversation.ID, "user-1", "hello")

	require.NoError(t, err)
	assert.NotEmpty(t, reply.Reply)
}
