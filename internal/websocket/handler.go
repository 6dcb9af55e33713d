// Package websocket 提供 WebSocket 通信功能
package websocket

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"humanly-server/internal/cache"
	pkgJwt "humanly-server/pkg/jwt"
	"humanly-server/pkg/response"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 检查来源（生产环境应该验证）
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler 处理 WebSocket 连接
type Handler struct {
	hub        *Hub
	jwtService *pkgJwt.JWTService
	cache      *cache.RedisCache
}

// NewHandler 创建 WebSocket Handler
func NewHandler(hub *Hub, jwtService *pkgJwt.JWTService, cache *cache.RedisCache) *Handler {
	return &Handler{
		hub:        hub,
		jwtService: jwtService,
		cache:      cache,
	}
}

// HandleWS 处理网页端 WebSocket 连接
// 路由: GET /ws
// 参数: token (query parameter) - JWT token
// 浏览器的 WebSocket API 不支持自定义请求头，token 只能放在 query 中
func (h *Handler) HandleWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Unauthorized(c, "需要认证 token")
		return
	}

	claims, err := h.jwtService.ValidateToken(token)
	if err != nil {
		response.Unauthorized(c, "无效的 token")
		return
	}

	// 登出后的 Token 不允许再建立连接
	hash := sha256.Sum256([]byte(token))
	if h.cache.IsTokenBlacklisted(c.Request.Context(), hex.EncodeToString(hash[:])) {
		response.Unauthorized(c, "Token 已失效，请重新登录")
		return
	}

	// 升级 HTTP 连接为 WebSocket
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[ERROR] WebSocket 升级失败: %v", err)
		return
	}

	client := NewClient(h.hub, conn, claims.UserID)
	h.hub.Register(client)

	// 启动读写协程
	go client.WritePump()
	go client.ReadPump()

	log.Printf("[INFO] WebSocket 已建立: userID=%d", claims.UserID)
}

// RegisterRoutes 注册 WebSocket 路由
// WebSocket 路由不挂认证中间件，token 在 query 中验证
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWS)
}
