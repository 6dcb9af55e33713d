// Package repository 提供数据访问层的实现
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"humanly-server/internal/model"
)

// StreakRepository 连续打卡数据访问层
// 同时负责成就与互动事件的读写
type StreakRepository struct {
	db *gorm.DB
}

// NewStreakRepository 创建 StreakRepository 实例
func NewStreakRepository(db *gorm.DB) *StreakRepository {
	return &StreakRepository{db: db}
}

// GetByUserID 获取用户的连续打卡记录
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - *model.Streak: 打卡记录，未找到返回 nil
//   - error: 数据库错误
func (r *StreakRepository) GetByUserID(ctx context.Context, userID int64) (*model.Streak, error) {
	var streak model.Streak
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&streak).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &streak, nil
}

// Save 创建或更新打卡记录
// 参数:
//   - ctx: 上下文
//   - streak: 打卡记录
//
// 返回:
//   - error: 数据库错误
func (r *StreakRepository) Save(ctx context.Context, streak *model.Streak) error {
	return r.db.WithContext(ctx).Save(streak).Error
}

// UnlockAchievement 解锁成就
// 重复解锁直接忽略（依赖 user_id + code 的唯一索引）
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - code: 成就代码
//
// 返回:
//   - bool: 是否为首次解锁
//   - error: 数据库错误
func (r *StreakRepository) UnlockAchievement(ctx context.Context, userID int64, code string) (bool, error) {
	achievement := &model.Achievement{
		UserID: userID,
		Code:   code,
	}
	// DoNothing: 冲突时不报错也不更新
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND code = ?", userID, code).
		FirstOrCreate(achievement)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListAchievements 获取用户已解锁的成就
// 按解锁时间正序排列
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - []model.Achievement: 成就列表
//   - error: 数据库错误
func (r *StreakRepository) ListAchievements(ctx context.Context, userID int64) ([]model.Achievement, error) {
	var achievements []model.Achievement
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("unlocked_at ASC").
		Find(&achievements).Error
	return achievements, err
}

// RecordEngagement 写入互动事件
// 只追加不更新，调用方对错误只做日志处理
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//   - kind: 事件类型
//
// 返回:
//   - error: 数据库错误
func (r *StreakRepository) RecordEngagement(ctx context.Context, userID int64, kind string) error {
	return r.db.WithContext(ctx).Create(&model.EngagementEvent{
		UserID: userID,
		Kind:   kind,
	}).Error
}
