// Package util 提供通用工具函数
package util

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword 使用 bcrypt 哈希密码
// bcrypt 是一种专门为密码哈希设计的算法，自动添加盐值
// 参数:
//   - password: 明文密码
//
// 返回:
//   - string: 密码哈希值
//   - error: 哈希错误
func HashPassword(password string) (string, error) {
	// bcrypt.DefaultCost 是默认的计算成本（10）
	// 成本越高，计算越慢，安全性越高
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword 验证密码是否匹配
// 参数:
//   - password: 用户输入的明文密码
//   - hash: 数据库中存储的哈希值
//
// 返回:
//   - bool: 是否匹配
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// GenerateLocalMessageID 生成本地消息 ID
// 消息在写入数据库前使用 UUID v4 作为临时标识
// 入库后会获得数据库分配的自增 ID（字符串形式）
// 返回:
//   - string: UUID 字符串，如 "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx"
func GenerateLocalMessageID() string {
	return uuid.New().String()
}

// GenerateSessionID 生成会话标识
// 用于区分同一用户的不同登录会话（缓存子键）
// 返回:
//   - string: 紧凑的 UUID 字符串（不含连字符）
func GenerateSessionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// GenerateToken 生成随机十六进制令牌
// 参数:
//   - n: 随机字节数（输出长度为 2n 个字符）
//
// 返回:
//   - string: 十六进制字符串
func GenerateToken(n int) string {
	bytes := make([]byte, n)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

// DayKey 返回日期键，格式 YYYYMMDD
// 用于按天统计的 Redis 计数器
// 参数:
//   - t: 时间
//
// 返回:
//   - string: 日期键，如 "20250114"
func DayKey(t time.Time) string {
	return t.Format("20060102")
}
