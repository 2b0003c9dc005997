package data

import (
	"fmt"
	"time"

	"chatbackend/pkg/cache"
	"chatbackend/pkg/database"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// NewDB 创建数据库连接并迁移聊天服务的表
func NewDB(c *database.Config, logger log.Logger) (*gorm.DB, error) {
	db, err := database.NewDB(c, logger)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&ConversationDO{}, &MessageDO{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return db, nil
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisCache 创建转录缓存用的 Redis 缓存
func NewRedisCache(c *RedisConfig) *cache.RedisCache {
	return cache.NewRedisCache(c.Addr, c.Password, c.DB, &cache.CacheOptions{
		DefaultTTL: 24 * time.Hour,
		KeyPrefix:  "transcript",
		Serializer: &cache.JSONSerializer{},
	})
}
