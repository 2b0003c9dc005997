package domain

import (
	"fmt"
	"strings"
	"time"
)

// Transcript 对话转录：有序消息序列及其派生元数据。
// 预算管理器在一次调用内独占该对象，调用间不保留引用。
type Transcript struct {
	ConversationID string
	Messages       []*Message
	TotalTokens    int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewTranscript 创建空转录
func NewTranscript(conversationID string) *Transcript {
	now := time.Now()
	return &Transcript{
		ConversationID: conversationID,
		Messages:       []*Message{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Append 追加消息并累加 Token 计数
func (t *Transcript) Append(msg *Message) {
	t.Messages = append(t.Messages, msg)
	t.TotalTokens += msg.Tokens
	t.UpdatedAt = time.Now()
}

// Len 消息条数
func (t *Transcript) Len() int {
	return len(t.Messages)
}

// Clone 深拷贝消息切片（消息本身不可变，浅拷贝指针即可）。
// 预算管理器在副本上工作，失败时调用方持有的转录保持原样。
func (t *Transcript) Clone() *Transcript {
	messages := make([]*Message, len(t.Messages))
	copy(messages, t.Messages)
	return &Transcript{
		ConversationID: t.ConversationID,
		Messages:       messages,
		TotalTokens:    t.TotalTokens,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

// Text 生成用于全文检索的对话文本
func (t *Transcript) Text() string {
	var sb strings.Builder
	for _, msg := range t.Messages {
		sb.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Content))
	}
	return sb.String()
}
