package infra

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"chatbackend/cmd/chat-service/internal/biz"
	"chatbackend/cmd/chat-service/internal/domain"
	"chatbackend/cmd/chat-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/sony/gobreaker"
)

// RetryConfig 重试配置
type RetryConfig struct {
	MaxAttempts     int           // 最大尝试次数（含首次）
	InitialInterval time.Duration // 初始退避时间
	MaxInterval     time.Duration // 最大退避时间
	Multiplier      float64       // 退避时间倍数
	RandomFactor    float64       // 随机因子（jitter）
}

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	Name             string        // 熔断器名称
	MaxRequests      uint32        // 半开状态允许的最大请求数
	Interval         time.Duration // 统计窗口
	Timeout          time.Duration // 熔断后恢复时间
	FailureThreshold float64       // 失败率阈值（0.0-1.0）
	MinRequests      uint32        // 最小请求数（达到后才计算失败率）
}

// ResilientCompletionClient 带熔断和重试的补全客户端。
// 重试打满或熔断开启时返回 ErrCompletionUnavailable，不产生降级回复，
// 调用方据此保持对话状态不变。
type ResilientCompletionClient struct {
	base           biz.CompletionClient
	circuitBreaker *gobreaker.CircuitBreaker
	retryConfig    *RetryConfig
	log            *log.Helper
}

// NewResilientCompletionClient 创建弹性补全客户端
func NewResilientCompletionClient(
	base biz.CompletionClient,
	cbConfig *CircuitBreakerConfig,
	retryConfig *RetryConfig,
	logger log.Logger,
) *ResilientCompletionClient {
	if cbConfig == nil {
		cbConfig = &CircuitBreakerConfig{
			Name:             "completion-api",
			MaxRequests:      3,
			Interval:         10 * time.Second,
			Timeout:          30 * time.Second,
			FailureThreshold: 0.5,
			MinRequests:      5,
		}
	}

	if retryConfig == nil {
		retryConfig = &RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     10 * time.Second,
			Multiplier:      2.0,
			RandomFactor:    0.1,
		}
	}

	logHelper := log.NewHelper(log.With(logger, "module", "resilient-completion-client"))

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cbConfig.Name,
		MaxRequests: cbConfig.MaxRequests,
		Interval:    cbConfig.Interval,
		Timeout:     cbConfig.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cbConfig.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cbConfig.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logHelper.Infof("circuit breaker %s state change: %s -> %s", name, from, to)
		},
	})

	return &ResilientCompletionClient{
		base:           base,
		circuitBreaker: cb,
		retryConfig:    retryConfig,
		log:            logHelper,
	}
}

// Complete 带熔断和重试地执行补全
func (c *ResilientCompletionClient) Complete(
	ctx context.Context,
	messages []*domain.Message,
	maxReplyTokens int,
	temperature float64,
) (string, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryConfig.MaxAttempts; attempt++ {
		result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return c.base.Complete(ctx, messages, maxReplyTokens, temperature)
		})
		if err == nil {
			if attempt > 0 {
				c.log.WithContext(ctx).Infof("completion succeeded after %d retries", attempt)
			}
			metrics.CompletionRequestsTotal.WithLabelValues("ok").Inc()
			return result.(string), nil
		}

		lastErr = err
		metrics.CompletionRequestsTotal.WithLabelValues("error").Inc()

		// 熔断开启时立即失败，不再重试
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.log.WithContext(ctx).Warnf("circuit breaker open, failing fast")
			return "", fmt.Errorf("%w: circuit breaker open", domain.ErrCompletionUnavailable)
		}

		// 调用方取消不重试
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if attempt == c.retryConfig.MaxAttempts-1 {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.log.WithContext(ctx).Infof("completion failed (attempt %d/%d), retrying after %v: %v",
			attempt+1, c.retryConfig.MaxAttempts, backoff, err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	c.log.WithContext(ctx).Errorf("completion failed after %d attempts: %v", c.retryConfig.MaxAttempts, lastErr)
	return "", fmt.Errorf("%w: %d attempts, last error: %v",
		domain.ErrCompletionUnavailable, c.retryConfig.MaxAttempts, lastErr)
}

// calculateBackoff 计算退避时间（指数退避 + jitter）
func (c *ResilientCompletionClient) calculateBackoff(attempt int) time.Duration {
	interval := float64(c.retryConfig.InitialInterval) * math.Pow(c.retryConfig.Multiplier, float64(attempt))
	if interval > float64(c.retryConfig.MaxInterval) {
		interval = float64(c.retryConfig.MaxInterval)
	}

	jitter := interval * c.retryConfig.RandomFactor
	interval = interval + (rand.Float64()*2-1)*jitter
	if interval < 0 {
		interval = 0
	}

	return time.Duration(interval)
}

// State 返回熔断器当前状态
func (c *ResilientCompletionClient) State() gobreaker.State {
	return c.circuitBreaker.State()
}
