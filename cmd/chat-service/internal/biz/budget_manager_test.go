package biz

import (
	"context"
	"errors"
	"strings"
	"testing"

	"chatbackend/cmd/chat-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runeCounter 按字符计 Token 的测试分词器
type runeCounter struct{}

func (runeCounter) CountTokens(text string) int {
	return len([]rune(text))
}

// MockSummarizer 模拟摘要器
type MockSummarizer struct {
	SummarizeFunc func(ctx context.Context, messages []*domain.Message) (string, error)
	Received      [][]*domain.Message
}

func (m *MockSummarizer) Summarize(ctx context.Context, messages []*domain.Message) (string, error) {
	m.Received = append(m.Received, messages)
	if m.SummarizeFunc != nil {
		return m.SummarizeFunc(ctx, messages)
	}
	return "summary text", nil
}

func testTranscript(tokens ...int) *domain.Transcript {
	transcript := domain.NewTranscript("conv-1")
	for i, n := range tokens {
		msg := domain.NewMessage("conv-1", domain.RoleUser, strings.Repeat("a", n))
		msg.SetTokens(n)
		if i%2 == 1 {
			msg.Role = domain.RoleAssistant
		}
		transcript.Append(msg)
	}
	return transcript
}

func TestManage_UnderCeilingKeepsAll(t *testing.T) {
	cfg := domain.TokenBudgetConfig{MaxTokens: 100, ReplyReserveTokens: 20, ChunkSizeTokens: 10, SummaryReserveTokens: 10}
	manager := NewTokenBudgetManager(runeCounter{}, cfg, nil, log.DefaultLogger)

	transcript := testTranscript(10, 10)
	managed, total, err := manager.Manage(context.Background(), transcript, strings.Repeat("x", 20))

	require.NoError(t, err)
	assert.Equal(t, 3, managed.Len())
	assert.Equal(t, 40, total)
	// 新消息以用户角色追加在末尾
	last := managed.Messages[managed.Len()-1]
	assert.Equal(t, domain.RoleUser, last.Role)
	assert.Equal(t, 20, last.Tokens)
	// 调用方持有的转录不受影响
	assert.Equal(t, 2, transcript.Len())
}

func TestManage_EvictsOldestFirst(t *testing.T) {
	cfg := domain.TokenBudgetConfig{MaxTokens: 100, ReplyReserveTokens: 20, ChunkSizeTokens: 10, SummaryReserveTokens: 10}
	manager := NewTokenBudgetManager(runeCounter{}, cfg, nil, log.DefaultLogger)

	// 上限 80：50+20+20=90 超限，仅最旧一条被驱逐
	transcript := testTranscript(50, 20)
	first := transcript.Messages[0]
	second := transcript.Messages[1]

	managed, total, err := manager.Manage(context.Background(), transcript, strings.Repeat("x", 20))

	require.NoError(t, err)
	assert.Equal(t, 2, managed.Len())
	assert.Equal(t, 40, total)
	assert.NotContains(t, managed.Messages, first)
	assert.Same(t, second, managed.Messages[0])
}

func TestManage_EvictionRepeatsUntilUnderCeiling(t *testing.T) {
	cfg := domain.TokenBudgetConfig{MaxTokens: 100, ReplyReserveTokens: 20, ChunkSizeTokens: 10, SummaryReserveTokens: 10}
	manager := NewTokenBudgetManager(runeCounter{}, cfg, nil, log.DefaultLogger)

	// 50+50+50=150：驱逐两条后剩 50 < 80
	transcript := testTranscript(50, 50)
	managed, total, err := manager.Manage(context.Background(), transcript, strings.Repeat("x", 50))

	require.NoError(t, err)
	assert.Equal(t, 1, managed.Len())
	assert.Equal(t, 50, total)
	assert.Less(t, total, cfg.Ceiling())
}

func TestManage_SecondCallIsStable(t *testing.T) {
	cfg := domain.TokenBudgetConfig{MaxTokens: 100, ReplyReserveTokens: 20, ChunkSizeTokens: 10, SummaryReserveTokens: 10}
	manager := NewTokenBudgetManager(runeCounter{}, cfg, nil, log.DefaultLogger)

	transcript := testTranscript(50, 50, 50)
	managed, total, err := manager.Manage(context.Background(), transcript, "")
	require.NoError(t, err)

	// 已在预算内的转录再次管理不发生变化
	again, againTotal, err := manager.Manage(context.Background(), managed, "")
	require.NoError(t, err)
	assert.Equal(t, managed.Len(), again.Len())
	assert.Equal(t, total, againTotal)
}

func TestManage_MessageTooLarge(t *testing.T) {
	cfg := domain.TokenBudgetConfig{MaxTokens: 100, ReplyReserveTokens: 20, ChunkSizeTokens: 10, SummaryReserveTokens: 10}
	manager := NewTokenBudgetManager(runeCounter{}, cfg, nil, log.DefaultLogger)

	transcript := testTranscript(30, 30)
	managed, _, err := manager.Manage(context.Background(), transcript, strings.Repeat("x", 90))

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMessageTooLarge)
	assert.Nil(t, managed)
	// 失败路径下调用方转录原样保留
	assert.Equal(t, 2, transcript.Len())
	assert.Equal(t, 60, transcript.TotalTokens)
}

func TestManage_SummaryInsertedAtFront(t *testing.T) {
	cfg := domain.TokenBudgetConfig{MaxTokens: 100, ReplyReserveTokens: 20, ChunkSizeTokens: 10, SummaryReserveTokens: 10}
	summarizer := &MockSummarizer{
		SummarizeFunc: func(ctx context.Context, messages []*domain.Message) (string, error) {
			return "key points", nil
		},
	}
	manager := NewTokenBudgetManager(runeCounter{}, cfg, summarizer, log.DefaultLogger)

	transcript := testTranscript(50, 20)
	managed, total, err := manager.Manage(context.Background(), transcript, strings.Repeat("x", 20))

	require.NoError(t, err)
	require.Len(t, summarizer.Received, 1)
	assert.Len(t, summarizer.Received[0], 1)

	// 摘要以系统消息插入队首
	head := managed.Messages[0]
	assert.Equal(t, domain.RoleSystem, head.Role)
	assert.Equal(t, "Summary: key points", head.Content)
	assert.Less(t, total, cfg.Ceiling())
}

func TestManage_SummarizeFailureFallsBackToEviction(t *testing.T) {
	cfg := domain.TokenBudgetConfig{MaxTokens: 100, ReplyReserveTokens: 20, ChunkSizeTokens: 10, SummaryReserveTokens: 10}
	summarizer := &MockSummarizer{
		SummarizeFunc: func(ctx context.Context, messages []*domain.Message) (string, error) {
			return "", errors.New("upstream unavailable")
		},
	}
	manager := NewTokenBudgetManager(runeCounter{}, cfg, summarizer, log.DefaultLogger)

	transcript := testTranscript(50, 20)
	managed, total, err := manager.Manage(context.Background(), transcript, strings.Repeat("x", 20))

	// 摘要失败不阻断对话，退化为纯驱逐
	require.NoError(t, err)
	assert.Equal(t, 2, managed.Len())
	assert.Equal(t, 40, total)
	for _, msg := range managed.Messages {
		assert.NotEqual(t, domain.RoleSystem, msg.Role)
	}
}

func TestManage_OversizedSummaryCappedThenPureEviction(t *testing.T) {
	cfg := domain.TokenBudgetConfig{MaxTokens: 100, ReplyReserveTokens: 20, ChunkSizeTokens: 10, SummaryReserveTokens: 10}
	// 摘要器越摘越长：摘要本身（"Summary: " + 100 字符 = 109 Token）超过上限 80
	summarizer := &MockSummarizer{
		SummarizeFunc: func(ctx context.Context, messages []*domain.Message) (string, error) {
			return strings.Repeat("s", 100), nil
		},
	}
	manager := NewTokenBudgetManager(runeCounter{}, cfg, summarizer, log.DefaultLogger)

	transcript := testTranscript(50, 20)
	managed, total, err := manager.Manage(context.Background(), transcript, strings.Repeat("x", 20))

	// 每轮超限摘要在下一轮被驱逐并重新摘要；轮次封顶后退化为纯驱逐并终止
	require.NoError(t, err)
	assert.Less(t, total, cfg.Ceiling())
	assert.Equal(t, 40, total)
	assert.Equal(t, 2, managed.Len())

	// 摘要器恰好被调用 3 次后停止
	assert.Len(t, summarizer.Received, 3)

	// 最后一轮的超限摘要被丢弃，结果中没有系统消息
	for _, msg := range managed.Messages {
		assert.NotEqual(t, domain.RoleSystem, msg.Role)
	}
}

func TestCompletionSummarizer_BuildsPrompt(t *testing.T) {
	client := &MockCompletionClient{
		CompleteFunc: func(ctx context.Context, messages []*domain.Message, maxReplyTokens int, temperature float64) (string, error) {
			assert.Len(t, messages, 1)
			assert.Contains(t, messages[0].Content, "user: hello")
			assert.Equal(t, 64, maxReplyTokens)
			return "  a summary  ", nil
		},
	}
	summarizer := NewCompletionSummarizer(client, 64)

	summary, err := summarizer.Summarize(context.Background(), []*domain.Message{
		{Role: domain.RoleUser, Content: "hello"},
	})

	require.NoError(t, err)
	assert.Equal(t, "a summary", summary)
}
