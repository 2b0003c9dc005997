package websocket

// Message 入站 WebSocket 消息
type Message struct {
	Type           string `json:"type"`            // send_message, ping
	ConversationID string `json:"conversation_id"` // 目标对话
	Content        string `json:"content"`         // 消息内容
	Timestamp      int64  `json:"timestamp"`       // 时间戳
}

// MessageType 消息类型常量
const (
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
	MessageTypeSendMessage   = "send_message"
	MessageTypeResponseChunk = "response_chunk"
	MessageTypeTokenUsage    = "token_usage"
	MessageTypeWelcome       = "welcome"
	MessageTypeError         = "error"
)

// ResponseChunkEvent 助手回复事件
type ResponseChunkEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	Finished       bool   `json:"finished"`
	Timestamp      int64  `json:"timestamp"`
}

// TokenUsageEvent Token 用量事件
type TokenUsageEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	TotalTokens    int    `json:"total_tokens"`
	ReplyTokens    int    `json:"reply_tokens"`
	Timestamp      int64  `json:"timestamp"`
}

// ErrorEvent 错误事件
type ErrorEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	Timestamp      int64  `json:"timestamp"`
}
