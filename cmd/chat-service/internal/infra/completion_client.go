package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"chatbackend/cmd/chat-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
)

// CompletionConfig 补全客户端配置
type CompletionConfig struct {
	// Endpoint OpenAI 兼容的 chat/completions 地址
	Endpoint string

	// APIKey Bearer 凭证
	APIKey string

	// Model 模型名（部分网关由部署路径决定，可留空）
	Model string

	// RequestTimeout 单次请求超时
	RequestTimeout time.Duration
}

// HTTPCompletionClient OpenAI 兼容 API 的补全客户端
type HTTPCompletionClient struct {
	httpClient *http.Client
	config     *CompletionConfig
	log        *log.Helper
}

// NewHTTPCompletionClient 创建补全客户端
func NewHTTPCompletionClient(config *CompletionConfig, logger log.Logger) *HTTPCompletionClient {
	timeout := config.RequestTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &HTTPCompletionClient{
		httpClient: &http.Client{Timeout: timeout},
		config:     config,
		log:        log.NewHelper(log.With(logger, "module", "completion-client")),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete 发送角色标注的消息序列并返回生成文本。
// 网络错误与非 2xx 状态原样外抛（由弹性包装层重试），
// 可解析但内容为空的响应记为 ErrMalformedCompletion。
func (c *HTTPCompletionClient) Complete(
	ctx context.Context,
	messages []*domain.Message,
	maxReplyTokens int,
	temperature float64,
) (string, error) {
	payload := completionRequest{
		Model:       c.config.Model,
		Messages:    make([]chatMessage, len(messages)),
		MaxTokens:   maxReplyTokens,
		Temperature: temperature,
		TopP:        0.95,
	}
	for i, msg := range messages {
		payload.Messages[i] = chatMessage{Role: string(msg.Role), Content: msg.Content}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("completion API status %d: %s", resp.StatusCode, string(snippet))
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedCompletion, err)
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: empty choices", domain.ErrMalformedCompletion)
	}

	return parsed.Choices[0].Message.Content, nil
}
