package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// 跨域校验由网关层负责
		return true
	},
}

// Handler WebSocket 升级处理器
type Handler struct {
	hub    *Hub
	logger log.Logger
	log    *log.Helper
}

// NewHandler 创建升级处理器
func NewHandler(hub *Hub, logger log.Logger) *Handler {
	return &Handler{
		hub:    hub,
		logger: logger,
		log:    log.NewHelper(log.With(logger, "module", "ws-handler")),
	}
}

// Serve 把 HTTP 连接升级为 WebSocket 并接入 Hub
func (h *Handler) Serve(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    401,
			"message": "authentication required",
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Errorf("websocket upgrade failed: %v", err)
		return
	}

	client := NewClient(uuid.New().String(), userID, conn, h.hub, h.logger)
	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
