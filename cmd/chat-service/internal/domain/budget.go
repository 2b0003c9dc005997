package domain

import "fmt"

// TokenBudgetConfig Token 预算配置。进程启动时加载一次，
// 之后按值传入预算管理器，生命周期内只读。
type TokenBudgetConfig struct {
	// MaxTokens 模型上下文窗口上限
	MaxTokens int

	// ReplyReserveTokens 为模型回复预留的 Token 数
	ReplyReserveTokens int

	// ChunkSizeTokens 文档分块的 Token 上限
	ChunkSizeTokens int

	// SummaryReserveTokens 摘要消息允许的最大 Token 数
	SummaryReserveTokens int
}

// Ceiling 预算上限：转录在模型调用前允许的最大 Token 总数
func (c TokenBudgetConfig) Ceiling() int {
	return c.MaxTokens - c.ReplyReserveTokens
}

// Validate 校验配置
func (c TokenBudgetConfig) Validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.ReplyReserveTokens < 0 || c.ReplyReserveTokens >= c.MaxTokens {
		return fmt.Errorf("reply_reserve_tokens must be in [0, max_tokens), got %d", c.ReplyReserveTokens)
	}
	if c.ChunkSizeTokens <= 0 {
		return fmt.Errorf("chunk_size_tokens must be positive, got %d", c.ChunkSizeTokens)
	}
	if c.SummaryReserveTokens <= 0 {
		return fmt.Errorf("summary_reserve_tokens must be positive, got %d", c.SummaryReserveTokens)
	}
	return nil
}
