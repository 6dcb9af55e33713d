// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// Streak 连续打卡记录
// 对应数据库表 streaks
// 用户每天完成至少一次对话即视为打卡，连续天数中断后从 1 重新计数
type Streak struct {
	// ID 记录唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// UserID 所属用户ID，一个用户只有一条连续打卡记录
	UserID int64 `gorm:"uniqueIndex;not null" json:"user_id"`

	// CurrentStreak 当前连续天数
	CurrentStreak int `gorm:"default:0" json:"current_streak"`

	// LongestStreak 历史最长连续天数
	LongestStreak int `gorm:"default:0" json:"longest_streak"`

	// LastActiveDate 最近一次打卡日期（按天，时间部分为零点）
	LastActiveDate *time.Time `json:"last_active_date,omitempty"`

	// CreatedAt 创建时间
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// UpdatedAt 更新时间
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Streak) TableName() string {
	return "streaks"
}
