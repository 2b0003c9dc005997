package biz

import (
	"context"
	"fmt"
	"strings"

	"chatbackend/cmd/chat-service/internal/domain"
	"chatbackend/cmd/chat-service/internal/metrics"
	"chatbackend/cmd/chat-service/internal/tokenizer"

	"github.com/go-kratos/kratos/v2/log"
)

// analyzeInstruction 每个分块独立携带的固定分析指令。
// 分块之间不传递上下文，Token 核算因此可预测。
const analyzeInstruction = "You are a document analyst. Analyze the following document excerpt and " +
	"describe its key points, structure and any notable details. The excerpt is " +
	"part of a larger document; analyze it on its own."

// DocumentAnalyzer 文档分析器：按行把文档切分为 Token 受限的块，
// 逐块送模型分析，并按块序拼接带标号的综合报告。
type DocumentAnalyzer struct {
	counter tokenizer.Counter
	client  CompletionClient
	cfg     domain.TokenBudgetConfig
	log     *log.Helper
}

// NewDocumentAnalyzer 创建文档分析器
func NewDocumentAnalyzer(
	counter tokenizer.Counter,
	client CompletionClient,
	cfg domain.TokenBudgetConfig,
	logger log.Logger,
) *DocumentAnalyzer {
	return &DocumentAnalyzer{
		counter: counter,
		client:  client,
		cfg:     cfg,
		log:     log.NewHelper(log.With(logger, "module", "doc-analyzer")),
	}
}

// ChunkDocument 按行贪心累积分块：当前块加入下一行会超过上限时封块，
// 该行开启新块。单行超限时整行独占一块并标记 Oversized，不在行中切分。
// 所有块的行按序拼接可还原原文档的行序列。
func (a *DocumentAnalyzer) ChunkDocument(text string, chunkSizeTokens int) []*domain.Chunk {
	lines := strings.Split(text, "\n")

	var chunks []*domain.Chunk
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, &domain.Chunk{
			Position:   len(chunks),
			Content:    strings.Join(current, "\n"),
			Lines:      current,
			TokenCount: currentTokens,
			Oversized:  len(current) == 1 && currentTokens > chunkSizeTokens,
		})
		current = nil
		currentTokens = 0
	}

	for _, line := range lines {
		lineTokens := a.counter.CountTokens(line)
		if len(current) > 0 && currentTokens+lineTokens > chunkSizeTokens {
			flush()
		}
		current = append(current, line)
		currentTokens += lineTokens
	}
	flush()

	return chunks
}

// AnalyzeDocument 分块并逐块分析，返回按块序拼接的综合报告。
// 单块分析失败不会中断整体流程：该块在报告中记为失败，错误不外抛。
func (a *DocumentAnalyzer) AnalyzeDocument(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", domain.ErrEmptyDocument
	}

	chunks := a.ChunkDocument(text, a.cfg.ChunkSizeTokens)
	a.log.WithContext(ctx).Infof("analyzing document: %d chunks", len(chunks))

	var report strings.Builder
	for _, chunk := range chunks {
		if chunk.Oversized {
			a.log.WithContext(ctx).Warnf("chunk %d exceeds chunk size: %d tokens", chunk.Position, chunk.TokenCount)
		}

		analysis := a.analyzeChunk(ctx, chunk)
		metrics.DocumentChunksTotal.Inc()
		report.WriteString(fmt.Sprintf("\n-- Analysis for Chunk %d --\n%s", chunk.Position+1, analysis))
	}

	return report.String(), nil
}

// analyzeChunk 独立分析单个分块（不携带会话历史或相邻块上下文）
func (a *DocumentAnalyzer) analyzeChunk(ctx context.Context, chunk *domain.Chunk) string {
	messages := []*domain.Message{
		{Role: domain.RoleSystem, Content: analyzeInstruction},
		{Role: domain.RoleUser, Content: chunk.Content},
	}

	analysis, err := a.client.Complete(ctx, messages, a.cfg.ReplyReserveTokens, 0.7)
	if err != nil {
		a.log.WithContext(ctx).Errorf("chunk %d analysis failed: %v", chunk.Position, err)
		return fmt.Sprintf("Analysis unavailable: %v", err)
	}

	return analysis
}
