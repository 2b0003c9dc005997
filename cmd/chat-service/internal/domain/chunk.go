package domain

// Chunk 文档分块：上传文档中一段连续的行，Token 数受 chunk_size_tokens 约束。
// 分块一次产生、一次消费（送模型分析后丢弃），不做持久化。
type Chunk struct {
	// Position 块在文档中的序号（从 0 开始）
	Position int

	// Content 块内容（保留原始行，末尾换行已去除）
	Content string

	// Lines 块包含的原始行
	Lines []string

	// TokenCount 块的 Token 数
	TokenCount int

	// Oversized 单行超过块上限时整行独占一块，标记为超限。
	// 不在行中间切分。
	Oversized bool
}
