// Package repository 提供数据访问层的实现
package repository

import (
	"context"

	"gorm.io/gorm"
	"humanly-server/internal/model"
)

// MessageRepository 聊天消息数据访问层
// 负责消息相关的所有数据库操作
// 注意：同步器只做单条插入，从不整表重写，以此限制写放大
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建 MessageRepository 实例
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create 插入一条新消息
// 参数:
//   - ctx: 上下文
//   - message: 消息对象，ID 和 CreatedAt 会被自动填充
//
// 返回:
//   - error: 数据库错误
func (r *MessageRepository) Create(ctx context.Context, message *model.ChatMessage) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// GetLatestByUserID 获取用户最新的 N 条消息
// 用于会话启动时加载历史，结果按时间正序排列
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - limit: 要获取的消息数量
//
// 返回:
//   - []model.ChatMessage: 消息列表（按时间正序）
//   - error: 数据库错误
func (r *MessageRepository) GetLatestByUserID(ctx context.Context, userID int64, limit int) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage

	// 子查询：先按时间倒序取最新的 N 条
	// 然后外层查询再按时间正序排列
	// 这样可以得到最新的 N 条消息，且顺序正确
	subQuery := r.db.WithContext(ctx).
		Model(&model.ChatMessage{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit)

	err := r.db.WithContext(ctx).
		Table("(?) as t", subQuery).
		Order("created_at ASC").
		Find(&messages).Error

	return messages, err
}

// CountByUserID 统计用户的消息数量
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - int64: 消息数量
//   - error: 数据库错误
func (r *MessageRepository) CountByUserID(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.ChatMessage{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// DeleteByUserID 删除用户的所有消息
// 用于账号注销等清理场景，开启新对话不会调用此方法
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - error: 数据库错误
func (r *MessageRepository) DeleteByUserID(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.ChatMessage{}).Error
}
