package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatbackend/cmd/chat-service/internal/domain"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyClient 按脚本返回结果的底层客户端
type flakyClient struct {
	results []error
	reply   string
	calls   int
}

func (c *flakyClient) Complete(ctx context.Context, messages []*domain.Message, maxReplyTokens int, temperature float64) (string, error) {
	idx := c.calls
	c.calls++
	if idx < len(c.results) && c.results[idx] != nil {
		return "", c.results[idx]
	}
	if c.reply == "" {
		return "reply", nil
	}
	return c.reply, nil
}

func fastRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     10 * time.Millisecond,
		Multiplier:      2.0,
		RandomFactor:    0.1,
	}
}

// quietBreakerConfig 最小请求数拉高，测试期间熔断器不会打开
func quietBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             "test-completion",
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      100,
	}
}

func TestResilientComplete_SucceedsFirstAttempt(t *testing.T) {
	base := &flakyClient{}
	client := NewResilientCompletionClient(base, quietBreakerConfig(), fastRetryConfig(), log.DefaultLogger)

	reply, err := client.Complete(context.Background(), nil, 100, 0.7)

	require.NoError(t, err)
	assert.Equal(t, "reply", reply)
	assert.Equal(t, 1, base.calls)
}

func TestResilientComplete_RetriesTransientFailure(t *testing.T) {
	base := &flakyClient{results: []error{errors.New("connection reset"), errors.New("timeout")}}
	client := NewResilientCompletionClient(base, quietBreakerConfig(), fastRetryConfig(), log.DefaultLogger)

	reply, err := client.Complete(context.Background(), nil, 100, 0.7)

	// 前两次失败被吸收，第三次成功
	require.NoError(t, err)
	assert.Equal(t, "reply", reply)
	assert.Equal(t, 3, base.calls)
}

func TestResilientComplete_StopsAtMaxAttempts(t *testing.T) {
	base := &flakyClient{results: []error{
		errors.New("down"), errors.New("down"), errors.New("down"), errors.New("down"),
	}}
	client := NewResilientCompletionClient(base, quietBreakerConfig(), fastRetryConfig(), log.DefaultLogger)

	_, err := client.Complete(context.Background(), nil, 100, 0.7)

	// 恰好尝试 MaxAttempts 次后放弃
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCompletionUnavailable)
	assert.Equal(t, 3, base.calls)
}

func TestResilientComplete_OpenBreakerFailsFast(t *testing.T) {
	base := &flakyClient{results: []error{
		errors.New("down"), errors.New("down"), errors.New("down"), errors.New("down"),
	}}
	// 两次失败即可触发熔断
	cbConfig := &CircuitBreakerConfig{
		Name:             "test-completion",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      2,
	}
	client := NewResilientCompletionClient(base, cbConfig, fastRetryConfig(), log.DefaultLogger)

	_, err := client.Complete(context.Background(), nil, 100, 0.7)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCompletionUnavailable)
	assert.Equal(t, gobreaker.StateOpen, client.State())
	// 第三次尝试被熔断器拦截，未到达底层客户端
	assert.Equal(t, 2, base.calls)

	// 熔断开启期间快速失败，不产生任何底层调用
	_, err = client.Complete(context.Background(), nil, 100, 0.7)
	assert.ErrorIs(t, err, domain.ErrCompletionUnavailable)
	assert.Equal(t, 2, base.calls)
}

func TestResilientComplete_ContextCancellationNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	base := &flakyClient{results: []error{errors.New("interrupted")}}
	client := NewResilientCompletionClient(base, quietBreakerConfig(), fastRetryConfig(), log.DefaultLogger)

	cancel()
	_, err := client.Complete(ctx, nil, 100, 0.7)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, base.calls)
}

func TestCalculateBackoff_GrowsAndClamps(t *testing.T) {
	client := NewResilientCompletionClient(&flakyClient{}, quietBreakerConfig(), &RetryConfig{
		MaxAttempts:     5,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     300 * time.Millisecond,
		Multiplier:      2.0,
		RandomFactor:    0,
	}, log.DefaultLogger)

	assert.Equal(t, 100*time.Millisecond, client.calculateBackoff(0))
	assert.Equal(t, 200*time.Millisecond, client.calculateBackoff(1))
	// 指数增长封顶在 MaxInterval
	assert.Equal(t, 300*time.Millisecond, client.calculateBackoff(2))
	assert.Equal(t, 300*time.Millisecond, client.calculateBackoff(3))
}
