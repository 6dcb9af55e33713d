// Package middleware 提供 HTTP 请求的中间件
package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"humanly-server/pkg/response"
)

// SendRateLimiter 每用户的发送频率限制器
// 基于令牌桶算法，限制对话接口的每分钟调用次数
// 与每日额度是两层独立的保护：这里防突发，额度防总量
type SendRateLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewSendRateLimiter 创建 SendRateLimiter 实例
// 参数:
//   - perMinute: 每分钟允许的请求数
func NewSendRateLimiter(perMinute int) *SendRateLimiter {
	if perMinute <= 0 {
		perMinute = 20
	}
	return &SendRateLimiter{
		limiters: make(map[int64]*rate.Limiter),
		rate:     rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
	}
}

// limiterFor 获取或创建用户的限制器
func (l *SendRateLimiter) limiterFor(userID int64) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[userID] = limiter
	}
	return limiter
}

// Middleware 返回限流中间件
// 必须挂在 AuthMiddleware 之后，依赖上下文中的 user_id
// 返回:
//   - gin.HandlerFunc: Gin 中间件函数
func (l *SendRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if userID == 0 {
			c.Next()
			return
		}

		if !l.limiterFor(userID).Allow() {
			response.RateLimited(c)
			c.Abort()
			return
		}

		c.Next()
	}
}

// Cleanup 清理长时间未使用的限制器
// 由调用方在后台周期性触发，防止 map 无限增长
func (l *SendRateLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	// 满桶说明至少一分钟没有请求了
	for userID, limiter := range l.limiters {
		if limiter.TokensAt(time.Now()) >= float64(l.burst) {
			delete(l.limiters, userID)
		}
	}
}
