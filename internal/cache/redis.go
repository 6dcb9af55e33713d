// Package cache 提供 Redis 缓存操作的封装
// 处理会话标记、消息快照、JWT 黑名单、用量计数等需要快速访问的数据
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"humanly-server/internal/config"
)

// RedisCache 封装 Redis 客户端，提供业务相关的缓存操作
type RedisCache struct {
	client *redis.Client // Redis 客户端实例
}

// NewRedisCache 创建 RedisCache 实例
// 参数:
//   - cfg: 应用配置（包含 Redis 连接信息）
//
// 返回:
//   - *RedisCache: 缓存实例
//   - error: 连接错误
func NewRedisCache(cfg *config.Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Username: cfg.Redis.Username, // 阿里云 Redis 需要用户名
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Close 关闭 Redis 连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// ==================== 会话标记 ====================
// 会话级标记带 TTL，模拟浏览器会话的生命周期
// 同一用户重新登录会生成新的会话标识，旧标记自然过期

// SetSessionFlag 设置会话标记
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - name: 标记名（如 chat_cleared / fresh_chat）
//   - value: 标记值
//   - ttl: 有效期，0 表示持久保存
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) SetSessionFlag(ctx context.Context, userID int64, name, value string, ttl time.Duration) error {
	return c.client.Set(ctx, sessionFlagKey(userID, name), value, ttl).Err()
}

// GetSessionFlag 读取会话标记
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - name: 标记名
//
// 返回:
//   - string: 标记值，不存在返回空字符串
//   - error: Redis 操作错误
func (c *RedisCache) GetSessionFlag(ctx context.Context, userID int64, name string) (string, error) {
	value, err := c.client.Get(ctx, sessionFlagKey(userID, name)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return value, err
}

// DeleteSessionFlag 删除会话标记
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - name: 标记名
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) DeleteSessionFlag(ctx context.Context, userID int64, name string) error {
	return c.client.Del(ctx, sessionFlagKey(userID, name)).Err()
}

// sessionFlagKey 拼接会话标记的 Redis Key
func sessionFlagKey(userID int64, name string) string {
	return fmt.Sprintf("user:%d:flag:%s", userID, name)
}

// ==================== 消息快照 ====================
// 内存消息列表的本地缓存投影
// 远端查询失败或无数据时作为历史兜底来源

// SaveMessageSnapshot 保存消息快照
// 参数:
//   - ctx: 上下文
//   - key: 快照键（用户键，非高级档附加会话子键）
//   - messages: 任意可 JSON 序列化的消息列表
//   - ttl: 有效期
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) SaveMessageSnapshot(ctx context.Context, key string, messages interface{}, ttl time.Duration) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKey(key), data, ttl).Err()
}

// LoadMessageSnapshot 读取消息快照
// 参数:
//   - ctx: 上下文
//   - key: 快照键
//   - dest: 反序列化目标（指向切片的指针）
//
// 返回:
//   - bool: 快照是否存在
//   - error: Redis 操作错误或反序列化错误
func (c *RedisCache) LoadMessageSnapshot(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, snapshotKey(key)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteMessageSnapshot 删除消息快照
// 开启新对话时调用，避免旧快照在兜底路径复活
func (c *RedisCache) DeleteMessageSnapshot(ctx context.Context, key string) error {
	return c.client.Del(ctx, snapshotKey(key)).Err()
}

// snapshotKey 拼接快照的 Redis Key
func snapshotKey(key string) string {
	return "chat:snapshot:" + key
}

// ==================== 用量计数 ====================
// 按天递增的消息计数，额度由订阅档位决定

// IncrUsage 递增用户当日用量并返回最新值
// Key 在次日零点后约 48 小时过期，保证跨时区读数可用
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - day: 日期键（YYYYMMDD）
//
// 返回:
//   - int64: 递增后的用量
//   - error: Redis 操作错误
func (c *RedisCache) IncrUsage(ctx context.Context, userID int64, day string) (int64, error) {
	key := usageKey(userID, day)
	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// GetUsage 读取用户当日用量
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - day: 日期键（YYYYMMDD）
//
// 返回:
//   - int64: 当日用量，无记录返回 0
//   - error: Redis 操作错误
func (c *RedisCache) GetUsage(ctx context.Context, userID int64, day string) (int64, error) {
	count, err := c.client.Get(ctx, usageKey(userID, day)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}

// usageKey 拼接用量计数的 Redis Key
func usageKey(userID int64, day string) string {
	return fmt.Sprintf("usage:%d:%s", userID, day)
}

// ==================== JWT 黑名单 ====================
// 用于实现 Token 强制失效（登出）功能

// BlacklistToken 将 Token 加入黑名单
// 登出时调用，使当前 Token 失效
// 参数:
//   - ctx: 上下文
//   - tokenHash: Token 的哈希值（不存储原始 Token）
//   - expireAt: Token 的原始过期时间
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error {
	// 计算剩余有效时间
	ttl := time.Until(expireAt)
	if ttl <= 0 {
		// Token 已过期，无需加入黑名单
		return nil
	}

	// TTL 设置为 Token 的剩余有效期，过期后自动删除（因为 Token 本身也过期了）
	return c.client.Set(ctx, fmt.Sprintf("jwt:blacklist:%s", tokenHash), "1", ttl).Err()
}

// IsTokenBlacklisted 检查 Token 是否在黑名单中
// JWT 验证中间件调用
// 参数:
//   - ctx: 上下文
//   - tokenHash: Token 的哈希值
//
// 返回:
//   - bool: 是否在黑名单中
func (c *RedisCache) IsTokenBlacklisted(ctx context.Context, tokenHash string) bool {
	// EXISTS 命令返回存在的 Key 数量
	return c.client.Exists(ctx, fmt.Sprintf("jwt:blacklist:%s", tokenHash)).Val() > 0
}

// ==================== 通用方法 ====================

// Ping 检查 Redis 连接
// 参数:
//   - ctx: 上下文
//
// 返回:
//   - error: 如果连接失败返回错误
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
