package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chatbackend/cmd/chat-service/internal/biz"
	"chatbackend/cmd/chat-service/internal/data"
	"chatbackend/cmd/chat-service/internal/domain"
	"chatbackend/cmd/chat-service/internal/infra"
	"chatbackend/cmd/chat-service/internal/infra/kafka"
	"chatbackend/cmd/chat-service/internal/middleware"
	"chatbackend/pkg/config"
	"chatbackend/pkg/database"

	_ "go.uber.org/automaxprocs"
)

func main() {
	configMode := config.GetEnv("CONFIG_MODE", "local")
	log.Printf("Starting Chat Service in %s mode", configMode)

	configPath := config.GetEnv("CONFIG_PATH", "./configs/chat-service.yaml")

	// 配置优先级：环境变量 > 配置中心/配置文件 > 默认值。
	// nacos 模式下配置文件提供连接参数并监听远端变更；
	// local 模式下配置文件存在时同样生效。
	var cfgManager *config.Manager
	if configMode == "nacos" {
		cfgManager = config.NewManager()
		if err := cfgManager.LoadConfig(configPath, "chat-service"); err != nil {
			log.Fatalf("Failed to load config from Nacos: %v", err)
		}
		defer cfgManager.Close()
	} else if _, err := os.Stat(configPath); err == nil {
		cfgManager = config.NewManager()
		if err := cfgManager.LoadConfig(configPath, "chat-service"); err != nil {
			log.Fatalf("Failed to load local config %s: %v", configPath, err)
		}
		defer cfgManager.Close()
	}

	appConfig := buildAppConfig(cfgManager)

	if err := appConfig.Budget.Validate(); err != nil {
		log.Fatalf("Invalid token budget config: %v", err)
	}

	// Kafka 事件发布是可选依赖，未配置 broker 时跳过
	var publisher biz.EventPublisher
	var producer *kafka.EventProducer
	if brokers := stringOption(cfgManager, "KAFKA_BROKERS", "kafka.brokers", ""); brokers != "" {
		var err error
		producer, err = kafka.NewEventProducer(&kafka.ProducerConfig{
			Brokers:    strings.Split(brokers, ","),
			Topic:      stringOption(cfgManager, "KAFKA_TOPIC", "kafka.topic", "chat.message.events"),
			MaxRetries: 3,
			Timeout:    10 * time.Second,
		})
		if err != nil {
			log.Fatalf("Failed to create kafka producer: %v", err)
		}
		publisher = producer
	}

	appComponents, err := initApp(appConfig, publisher)
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}

	// 启动 WebSocket Hub
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go appComponents.Hub.Run(hubCtx)

	var addr string
	if cfgManager != nil {
		addr = cfgManager.GetString("server.http.addr")
	}
	if addr == "" {
		addr = fmt.Sprintf(":%s", config.GetEnv("PORT", "8080"))
	}
	log.Printf("Starting Chat Service on %s", addr)

	go func() {
		if err := appComponents.Server.Start(addr); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := appComponents.Server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	hubCancel()

	if producer != nil {
		_ = producer.Close()
	}

	if appComponents.DB != nil {
		sqlDB, err := appComponents.DB.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	}

	log.Println("Server exited")
}

// buildAppConfig 组装启动配置。m 非 nil 时配置管理器的键值作为默认值，
// 环境变量始终最高优先
func buildAppConfig(m *config.Manager) *AppConfig {
	// 数据库段按结构体整段解析
	var dbCfg struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Database string `mapstructure:"database"`
		SSLMode  string `mapstructure:"sslmode"`
	}
	if m != nil {
		if err := m.UnmarshalKey("data.database", &dbCfg); err != nil {
			log.Printf("Failed to unmarshal database config, using defaults: %v", err)
		}
	}

	return &AppConfig{
		DB: &database.Config{
			Host:     config.GetEnv("DB_HOST", orDefault(dbCfg.Host, "localhost")),
			Port:     config.GetEnvAsInt("DB_PORT", orDefaultInt(dbCfg.Port, 5432)),
			User:     config.GetEnv("DB_USER", orDefault(dbCfg.User, "postgres")),
			Password: config.GetEnv("DB_PASSWORD", orDefault(dbCfg.Password, "postgres")),
			Database: config.GetEnv("DB_NAME", orDefault(dbCfg.Database, "chatbackend")),
			SSLMode:  config.GetEnv("DB_SSLMODE", orDefault(dbCfg.SSLMode, "disable")),
		},
		Redis: &data.RedisConfig{
			Addr:     stringOption(m, "REDIS_ADDR", "data.redis.addr", "localhost:6379"),
			Password: stringOption(m, "REDIS_PASSWORD", "data.redis.password", ""),
			DB:       intOption(m, "REDIS_DB", "data.redis.db", 0),
		},
		Completion: &infra.CompletionConfig{
			Endpoint:       stringOption(m, "COMPLETION_ENDPOINT", "completion.endpoint", "http://localhost:8000/v1/chat/completions"),
			APIKey:         stringOption(m, "COMPLETION_API_KEY", "completion.api_key", ""),
			Model:          stringOption(m, "COMPLETION_MODEL", "completion.model", ""),
			RequestTimeout: durationOption(m, "COMPLETION_TIMEOUT", "completion.timeout", 60*time.Second),
		},
		JWT: &middleware.JWTConfig{
			SecretKey:     stringOption(m, "JWT_SECRET", "jwt.secret", "default-secret-key"),
			TokenDuration: durationOption(m, "JWT_DURATION", "jwt.duration", 24*time.Hour),
			SkipPaths:     []string{"/health", "/metrics"},
		},
		Budget: domain.TokenBudgetConfig{
			MaxTokens:            intOption(m, "BUDGET_MAX_TOKENS", "budget.max_tokens", 4096),
			ReplyReserveTokens:   intOption(m, "BUDGET_REPLY_RESERVE_TOKENS", "budget.reply_reserve_tokens", 1000),
			ChunkSizeTokens:      intOption(m, "BUDGET_CHUNK_SIZE_TOKENS", "budget.chunk_size_tokens", 2000),
			SummaryReserveTokens: intOption(m, "BUDGET_SUMMARY_RESERVE_TOKENS", "budget.summary_reserve_tokens", 500),
		},
		ExportDir:      stringOption(m, "EXPORT_DIR", "export.dir", "./exports"),
		MaxFileBytes:   int64(intOption(m, "MAX_FILE_BYTES", "files.max_bytes", 5*1024*1024)),
		SummaryEnabled: boolOption(m, "SUMMARY_ENABLED", "budget.summary_enabled", true),
	}
}

// stringOption 取单个配置项：环境变量 > 配置管理器 > 默认值
func stringOption(m *config.Manager, envKey, cfgKey, def string) string {
	if m != nil && m.IsSet(cfgKey) {
		def = m.GetString(cfgKey)
	}
	return config.GetEnv(envKey, def)
}

func intOption(m *config.Manager, envKey, cfgKey string, def int) int {
	if m != nil && m.IsSet(cfgKey) {
		def = m.GetInt(cfgKey)
	}
	return config.GetEnvAsInt(envKey, def)
}

func boolOption(m *config.Manager, envKey, cfgKey string, def bool) bool {
	if m != nil && m.IsSet(cfgKey) {
		def = m.GetBool(cfgKey)
	}
	return config.GetEnvAsBool(envKey, def)
}

func durationOption(m *config.Manager, envKey, cfgKey string, def time.Duration) time.Duration {
	if m != nil && m.IsSet(cfgKey) {
		def = m.GetDuration(cfgKey)
	}
	return config.GetEnvAsDuration(envKey, def)
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

func orDefaultInt(value, def int) int {
	if value == 0 {
		return def
	}
	return value
}
