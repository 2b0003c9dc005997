//go:build wireinject
// +build wireinject

package main

import (
	"chatbackend/cmd/chat-service/internal/biz"
	"chatbackend/cmd/chat-service/internal/data"
	"chatbackend/cmd/chat-service/internal/infra"
	"chatbackend/cmd/chat-service/internal/server"
	"chatbackend/cmd/chat-service/internal/service"
	"chatbackend/cmd/chat-service/internal/websocket"

	"github.com/google/wire"
)

// initApp 初始化应用
func initApp(cfg *AppConfig, publisher biz.EventPublisher) (*AppComponents, error) {
	panic(wire.Build(
		provideLogger,

		// Data 层
		provideDBConfig,
		data.NewDB,
		provideRedisConfig,
		data.NewRedisCache,
		data.NewTranscriptCache,
		data.NewConversationRepository,
		data.NewMessageRepository,

		// Infra 层
		provideCompletionConfig,
		infra.NewHTTPCompletionClient,
		provideCompletionClient,

		// Biz 层
		provideCounter,
		provideBudgetConfig,
		provideSummarizer,
		biz.NewTokenBudgetManager,
		biz.NewDocumentAnalyzer,
		biz.NewChatUsecase,
		provideExportDir,
		biz.NewConversationUsecase,
		provideMaxFileBytes,
		biz.NewFileUsecase,

		// Service 层
		service.NewChatService,

		// WebSocket 层
		wire.Bind(new(websocket.ChatHandler), new(*service.ChatService)),
		provideHubConfig,
		websocket.NewHub,
		websocket.NewHandler,

		// Server 层
		provideJWTManager,
		server.NewHTTPServer,

		// 组装 AppComponents
		wire.Struct(new(AppComponents), "*"),
	))
}
