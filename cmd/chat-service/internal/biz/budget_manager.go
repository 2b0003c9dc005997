package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatbackend/cmd/chat-service/internal/domain"
	"chatbackend/cmd/chat-service/internal/metrics"
	"chatbackend/cmd/chat-service/internal/tokenizer"

	"github.com/go-kratos/kratos/v2/log"
)

// maxSummaryRounds 摘要轮次上限。每轮至少驱逐一条消息、至多插入一条摘要，
// 消息数不增；轮次封顶后退化为纯驱逐，保证终止。
const maxSummaryRounds = 3

// CompletionClient 上游大模型补全能力（黑盒：消息进、文本出或失败）
type CompletionClient interface {
	Complete(ctx context.Context, messages []*domain.Message, maxReplyTokens int, temperature float64) (string, error)
}

// Summarizer 将一批被驱逐的消息压缩为一段摘要文本
type Summarizer interface {
	Summarize(ctx context.Context, messages []*domain.Message) (string, error)
}

// TokenBudgetManager Token 预算管理器：在每次模型调用前把转录裁剪进预算上限。
// 驱逐顺序为 FIFO（最旧优先），可选地把被驱逐的消息摘要后以系统消息重新插入队首。
type TokenBudgetManager struct {
	counter    tokenizer.Counter
	cfg        domain.TokenBudgetConfig
	summarizer Summarizer // nil 时为纯滑动窗口
	log        *log.Helper
}

// NewTokenBudgetManager 创建预算管理器
func NewTokenBudgetManager(
	counter tokenizer.Counter,
	cfg domain.TokenBudgetConfig,
	summarizer Summarizer,
	logger log.Logger,
) *TokenBudgetManager {
	return &TokenBudgetManager{
		counter:    counter,
		cfg:        cfg,
		summarizer: summarizer,
		log:        log.NewHelper(log.With(logger, "module", "token-budget")),
	}
}

// Manage 把转录裁剪进预算上限并返回裁剪后的转录与 Token 总数。
// newMessage 非空时先以用户角色追加（新消息的 Token 立即计入上限）。
// 在副本上工作：任何失败路径下调用方持有的转录保持不变。
func (m *TokenBudgetManager) Manage(
	ctx context.Context,
	transcript *domain.Transcript,
	newMessage string,
) (*domain.Transcript, int, error) {
	work := transcript.Clone()

	if newMessage != "" {
		msg := domain.NewMessage(work.ConversationID, domain.RoleUser, newMessage)
		msg.SetTokens(m.counter.CountTokens(newMessage))
		work.Messages = append(work.Messages, msg)
	}

	total := 0
	for _, msg := range work.Messages {
		total += m.messageTokens(msg)
	}

	ceiling := m.cfg.Ceiling()

	for round := 0; ; round++ {
		var evicted []*domain.Message
		for total >= ceiling && len(work.Messages) > 1 {
			oldest := work.Messages[0]
			work.Messages = work.Messages[1:]
			total -= m.messageTokens(oldest)
			evicted = append(evicted, oldest)
			metrics.MessagesEvictedTotal.Inc()
		}

		if total >= ceiling {
			// 只剩一条消息仍超限：显式失败，绝不返回超限转录
			return nil, 0, fmt.Errorf("%w: %d tokens, ceiling %d",
				domain.ErrMessageTooLarge, total, ceiling)
		}

		if len(evicted) == 0 || m.summarizer == nil {
			break
		}

		if round >= maxSummaryRounds {
			m.log.WithContext(ctx).Warnf("summary round limit reached, dropping %d evicted messages", len(evicted))
			break
		}

		summary, err := m.summarizer.Summarize(ctx, evicted)
		if err != nil {
			// 摘要失败回退为纯驱逐，对话继续可用
			m.log.WithContext(ctx).Warnf("summarization failed, dropping %d evicted messages: %v", len(evicted), err)
			break
		}

		summaryMsg := domain.NewMessage(work.ConversationID, domain.RoleSystem, "Summary: "+summary)
		summaryMsg.SetTokens(m.counter.CountTokens(summaryMsg.Content))
		work.Messages = append([]*domain.Message{summaryMsg}, work.Messages...)
		total += summaryMsg.Tokens
		metrics.SummariesCreatedTotal.Inc()

		m.log.WithContext(ctx).Infof("summarized %d evicted messages into %d tokens", len(evicted), summaryMsg.Tokens)

		if total < ceiling {
			break
		}
		// 摘要后仍超限：下一轮里摘要消息本身也可被驱逐
	}

	work.TotalTokens = total
	work.UpdatedAt = time.Now()
	return work, total, nil
}

// messageTokens 取消息的 Token 数，缺省时按固定分词器补算
func (m *TokenBudgetManager) messageTokens(msg *domain.Message) int {
	if msg.Tokens > 0 {
		return msg.Tokens
	}
	return m.counter.CountTokens(msg.Content)
}

// CompletionSummarizer 通过补全客户端生成摘要
type CompletionSummarizer struct {
	client           CompletionClient
	maxSummaryTokens int
}

// NewCompletionSummarizer 创建摘要器
func NewCompletionSummarizer(client CompletionClient, maxSummaryTokens int) *CompletionSummarizer {
	return &CompletionSummarizer{
		client:           client,
		maxSummaryTokens: maxSummaryTokens,
	}
}

// Summarize 把一批消息压缩为一段简明摘要
func (s *CompletionSummarizer) Summarize(ctx context.Context, messages []*domain.Message) (string, error) {
	var sb strings.Builder
	sb.WriteString("Summarize the following conversation concisely, capturing the key points and context:\n\n")
	for _, msg := range messages {
		sb.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Content))
	}
	sb.WriteString("\nProvide a concise summary of the key points:")

	prompt := []*domain.Message{
		{Role: domain.RoleUser, Content: sb.String()},
	}

	summary, err := s.client.Complete(ctx, prompt, s.maxSummaryTokens, 0.3)
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}

	return strings.TrimSpace(summary), nil
}
