package main

import (
	"os"

	"chatbackend/cmd/chat-service/internal/biz"
	"chatbackend/cmd/chat-service/internal/data"
	"chatbackend/cmd/chat-service/internal/domain"
	"chatbackend/cmd/chat-service/internal/infra"
	"chatbackend/cmd/chat-service/internal/middleware"
	"chatbackend/cmd/chat-service/internal/server"
	"chatbackend/cmd/chat-service/internal/tokenizer"
	"chatbackend/cmd/chat-service/internal/websocket"
	"chatbackend/pkg/database"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// AppComponents 包含应用组件和资源
type AppComponents struct {
	Server *server.HTTPServer
	Hub    *websocket.Hub
	DB     *gorm.DB
}

// AppConfig 启动配置
type AppConfig struct {
	DB           *database.Config
	Redis        *data.RedisConfig
	Completion   *infra.CompletionConfig
	JWT          *middleware.JWTConfig
	Budget       domain.TokenBudgetConfig
	ExportDir    string
	MaxFileBytes int64

	// SummaryEnabled 为真时被驱逐的消息会被摘要后保留
	SummaryEnabled bool
}

// provideLogger 创建带服务字段的结构化日志
func provideLogger() log.Logger {
	return log.With(log.NewStdLogger(os.Stdout),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service", "chat-service",
	)
}

func provideDBConfig(cfg *AppConfig) *database.Config {
	return cfg.DB
}

func provideRedisConfig(cfg *AppConfig) *data.RedisConfig {
	return cfg.Redis
}

func provideCompletionConfig(cfg *AppConfig) *infra.CompletionConfig {
	return cfg.Completion
}

func provideBudgetConfig(cfg *AppConfig) domain.TokenBudgetConfig {
	return cfg.Budget
}

func provideExportDir(cfg *AppConfig) string {
	return cfg.ExportDir
}

func provideMaxFileBytes(cfg *AppConfig) int64 {
	return cfg.MaxFileBytes
}

func provideJWTManager(cfg *AppConfig, logger log.Logger) *middleware.JWTManager {
	return middleware.NewJWTManager(cfg.JWT, logger)
}

func provideCounter() tokenizer.Counter {
	return tokenizer.NewCharCounter()
}

// provideCompletionClient 把原始 HTTP 客户端包上熔断与重试
func provideCompletionClient(base *infra.HTTPCompletionClient, logger log.Logger) biz.CompletionClient {
	return infra.NewResilientCompletionClient(base, nil, nil, logger)
}

// provideSummarizer 按配置决定是否启用摘要压缩，关闭时为纯滑动窗口
func provideSummarizer(cfg *AppConfig, client biz.CompletionClient) biz.Summarizer {
	if !cfg.SummaryEnabled {
		return nil
	}
	return biz.NewCompletionSummarizer(client, cfg.Budget.SummaryReserveTokens)
}

func provideHubConfig() *websocket.HubConfig {
	return nil
}
