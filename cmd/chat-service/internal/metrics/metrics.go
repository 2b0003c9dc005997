package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChatMessagesTotal 处理的聊天消息总数
	ChatMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"status"})

	// ChatMessageDuration 聊天消息处理延迟
	ChatMessageDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_message_duration_seconds",
		Help:    "Chat message processing duration in seconds",
		Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	// TranscriptTokensTotal 预算管理后的转录 Token 总量分布
	TranscriptTokensTotal = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transcript_tokens_total",
		Help:    "Transcript token total after budget management",
		Buckets: []float64{256, 512, 1024, 2048, 4096, 8192, 16384},
	})

	// MessagesEvictedTotal 预算管理驱逐的消息总数
	MessagesEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messages_evicted_total",
		Help: "Total number of messages evicted by budget management",
	})

	// SummariesCreatedTotal 摘要压缩生成的摘要总数
	SummariesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "summaries_created_total",
		Help: "Total number of summaries created during eviction",
	})

	// CompletionRequestsTotal 模型补全请求总数
	CompletionRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "completion_requests_total",
		Help: "Total number of completion API requests",
	}, []string{"status"})

	// DocumentChunksTotal 文档分析产生的分块总数
	DocumentChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "document_chunks_total",
		Help: "Total number of document chunks analyzed",
	})

	// WebSocketConnectionsTotal WebSocket连接总数
	WebSocketConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websocket_connections_total",
		Help: "Total number of WebSocket connections",
	})

	// WebSocketConnectionsActive 当前活跃的WebSocket连接数
	WebSocketConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Number of active WebSocket connections",
	})

	// WebSocketMessagesReceived 接收的消息总数
	WebSocketMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_messages_received_total",
		Help: "Total number of messages received",
	}, []string{"type"})

	// WebSocketErrors WebSocket错误计数
	WebSocketErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_errors_total",
		Help: "Total number of WebSocket errors",
	}, []string{"error_type"})

	// TranscriptCacheHits 转录缓存命中数
	TranscriptCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcript_cache_hits_total",
		Help: "Total number of transcript cache hits",
	})

	// TranscriptCacheMisses 转录缓存未命中数
	TranscriptCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcript_cache_misses_total",
		Help: "Total number of transcript cache misses",
	})
)
