// Package repository 提供数据访问层的实现
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"humanly-server/internal/model"
)

// ProfileRepository 教练档案数据访问层
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository 创建 ProfileRepository 实例
func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create 创建档案
// 注册成功后立即调用，Onboarded 默认为 false
// 参数:
//   - ctx: 上下文
//   - profile: 档案对象
//
// 返回:
//   - error: 数据库错误
func (r *ProfileRepository) Create(ctx context.Context, profile *model.Profile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}

// GetByUserID 根据用户 ID 获取档案
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
//
// 返回:
//   - *model.Profile: 档案对象，未找到返回 nil
//   - error: 数据库错误
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID int64) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

// Update 更新档案
// 参数:
//   - ctx: 上下文
//   - profile: 档案对象，按主键更新
//
// 返回:
//   - error: 数据库错误
func (r *ProfileRepository) Update(ctx context.Context, profile *model.Profile) error {
	return r.db.WithContext(ctx).Save(profile).Error
}
