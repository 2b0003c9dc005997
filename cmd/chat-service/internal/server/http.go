package server

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"chatbackend/cmd/chat-service/internal/middleware"
	"chatbackend/cmd/chat-service/internal/service"
	"chatbackend/cmd/chat-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPServer HTTP 服务器
type HTTPServer struct {
	engine  *gin.Engine
	service *service.ChatService
	ws      *websocket.Handler
	jwt     *middleware.JWTManager
	logger  log.Logger
	srv     *http.Server
}

// NewHTTPServer 创建 HTTP 服务器
func NewHTTPServer(
	srv *service.ChatService,
	ws *websocket.Handler,
	jwt *middleware.JWTManager,
	logger log.Logger,
) *HTTPServer {
	engine := gin.New()

	s := &HTTPServer{
		engine:  engine,
		service: srv,
		ws:      ws,
		jwt:     jwt,
		logger:  logger,
	}

	s.registerMiddleware()
	s.registerRoutes()

	return s
}

// registerMiddleware 注册中间件
func (s *HTTPServer) registerMiddleware() {
	// 恢复中间件（必须最先）
	s.engine.Use(RecoveryMiddleware(s.logger))

	// CORS 中间件
	s.engine.Use(CORSMiddleware())

	// 追踪中间件
	s.engine.Use(TracingMiddleware())

	// 日志中间件
	s.engine.Use(LoggingMiddleware(s.logger))

	// 超时中间件（模型补全含重试，给足余量）
	s.engine.Use(TimeoutMiddleware(120 * time.Second))

	// JWT 认证中间件
	s.engine.Use(s.jwt.Middleware())
}

// registerRoutes 注册路由
func (s *HTTPServer) registerRoutes() {
	api := s.engine.Group("/api/v1")

	// 对话接口
	conversations := api.Group("/conversations")
	{
		conversations.POST("", s.startConversation)
		conversations.GET("", s.listConversations)
		conversations.GET("/search", s.searchConversations)
		conversations.GET("/:id/messages", s.getTranscript)
		conversations.POST("/:id/messages", s.sendMessage)
		conversations.POST("/:id/reset", s.resetConversation)
		conversations.POST("/:id/examples", s.addExample)
		conversations.POST("/:id/export", s.exportConversation)
	}

	// 文件分析接口
	api.POST("/files", s.analyzeFile)

	// 生效配置
	api.GET("/config", s.getConfig)

	// WebSocket 接入
	s.engine.GET("/ws", s.ws.Serve)

	// 健康检查
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// Prometheus 指标
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// contextUser 从认证上下文取用户与租户
func contextUser(c *gin.Context) (tenantID, userID string) {
	return c.GetString("tenant_id"), c.GetString("user_id")
}

// startConversation 新建对话
func (s *HTTPServer) startConversation(c *gin.Context) {
	tenantID, userID := contextUser(c)

	conversation, err := s.service.StartConversation(c.Request.Context(), tenantID, userID)
	if err != nil {
		Error(c, err)
		return
	}

	Created(c, conversation)
}

// listConversations 列出对话
func (s *HTTPServer) listConversations(c *gin.Context) {
	tenantID, userID := contextUser(c)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	conversations, total, err := s.service.ListConversations(c.Request.Context(), tenantID, userID, limit, offset)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{
		"conversations": conversations,
		"total":         total,
		"limit":         limit,
		"offset":        offset,
	})
}

// searchConversations 检索对话
func (s *HTTPServer) searchConversations(c *gin.Context) {
	_, userID := contextUser(c)

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, Response{
			Code:    400,
			Message: "query parameter 'q' is required",
		})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	conversations, err := s.service.SearchConversations(c.Request.Context(), userID, query, limit)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{
		"conversations": conversations,
		"query":         query,
	})
}

// getTranscript 加载对话消息
func (s *HTTPServer) getTranscript(c *gin.Context) {
	_, userID := contextUser(c)

	messages, err := s.service.GetTranscript(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{
		"messages": messages,
	})
}

// sendMessage 发送用户消息
func (s *HTTPServer) sendMessage(c *gin.Context) {
	_, userID := contextUser(c)

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code:    400,
			Message: err.Error(),
		})
		return
	}

	reply, err := s.service.SendMessage(c.Request.Context(), c.Param("id"), userID, req.Content)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{
		"reply":        reply.Reply,
		"total_tokens": reply.TotalTokens,
		"reply_tokens": reply.ReplyTokens,
	})
}

// resetConversation 清空对话历史
func (s *HTTPServer) resetConversation(c *gin.Context) {
	_, userID := contextUser(c)

	if err := s.service.ResetConversation(c.Request.Context(), c.Param("id"), userID); err != nil {
		Error(c, err)
		return
	}

	Success(c, nil)
}

// addExample 追加 few-shot 示例
func (s *HTTPServer) addExample(c *gin.Context) {
	_, userID := contextUser(c)

	var req struct {
		UserPrompt        string `json:"user_prompt" binding:"required"`
		AssistantResponse string `json:"assistant_response" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code:    400,
			Message: err.Error(),
		})
		return
	}

	if err := s.service.AddFewShotExample(c.Request.Context(), c.Param("id"), userID, req.UserPrompt, req.AssistantResponse); err != nil {
		Error(c, err)
		return
	}

	Created(c, nil)
}

// exportConversation 导出对话历史
func (s *HTTPServer) exportConversation(c *gin.Context) {
	_, userID := contextUser(c)

	path, err := s.service.ExportConversation(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{
		"path": path,
	})
}

// analyzeFile 上传并分块分析文档
func (s *HTTPServer) analyzeFile(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Code:    400,
			Message: "multipart field 'file' is required",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		Error(c, err)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		Error(c, err)
		return
	}

	report, err := s.service.AnalyzeUpload(c.Request.Context(), fileHeader.Filename, fileHeader.Size, content)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{
		"filename": fileHeader.Filename,
		"analysis": report,
	})
}

// getConfig 返回生效的 Token 预算配置
func (s *HTTPServer) getConfig(c *gin.Context) {
	cfg := s.service.BudgetConfig()
	Success(c, gin.H{
		"max_tokens":           cfg.MaxTokens,
		"reply_reserve_tokens": cfg.ReplyReserveTokens,
		"chunk_size_tokens":    cfg.ChunkSizeTokens,
		"context_ceiling":      cfg.Ceiling(),
	})
}

// Start 启动服务器
func (s *HTTPServer) Start(addr string) error {
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}
	return s.srv.ListenAndServe()
}

// Shutdown 优雅关闭服务器
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
