package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatbackend/cmd/chat-service/internal/domain"
	"chatbackend/pkg/cache"

	"github.com/redis/go-redis/v9"
)

// defaultTranscriptTTL 转录缓存默认存活时间
const defaultTranscriptTTL = 24 * time.Hour

// TranscriptCache 转录缓存实现
type TranscriptCache struct {
	cache *cache.RedisCache
}

// NewTranscriptCache 创建转录缓存
func NewTranscriptCache(c *cache.RedisCache) domain.TranscriptCache {
	return &TranscriptCache{
		cache: c,
	}
}

// GetTranscript 获取对话转录，缓存未命中返回 nil
func (c *TranscriptCache) GetTranscript(ctx context.Context, conversationID string) (*domain.Transcript, error) {
	var transcript domain.Transcript
	err := c.cache.GetObject(ctx, conversationID, &transcript)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transcript cache get: %w", err)
	}

	return &transcript, nil
}

// SetTranscript 写入对话转录
func (c *TranscriptCache) SetTranscript(ctx context.Context, transcript *domain.Transcript, ttl time.Duration) error {
	if ttl == 0 {
		ttl = defaultTranscriptTTL
	}

	if err := c.cache.SetObject(ctx, transcript.ConversationID, transcript, ttl); err != nil {
		return fmt.Errorf("transcript cache set: %w", err)
	}
	return nil
}

// DeleteTranscript 删除对话转录
func (c *TranscriptCache) DeleteTranscript(ctx context.Context, conversationID string) error {
	if err := c.cache.Delete(ctx, conversationID); err != nil {
		return fmt.Errorf("transcript cache delete: %w", err)
	}
	return nil
}
