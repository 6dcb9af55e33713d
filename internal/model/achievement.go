// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// 成就代码常量
const (
	AchievementFirstMessage = "first_message" // 第一次对话
	AchievementStreak3      = "streak_3"      // 连续打卡 3 天
	AchievementStreak7      = "streak_7"      // 连续打卡 7 天
	AchievementStreak30     = "streak_30"     // 连续打卡 30 天
)

// Achievement 成就记录
// 对应数据库表 achievements
// 每个用户的每种成就只解锁一次（user_id + code 唯一索引）
type Achievement struct {
	// ID 记录唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// UserID 所属用户ID
	UserID int64 `gorm:"index:idx_user_code,unique;not null" json:"user_id"`

	// Code 成就代码，见上方常量
	Code string `gorm:"size:50;index:idx_user_code,unique;not null" json:"code"`

	// UnlockedAt 解锁时间
	UnlockedAt time.Time `gorm:"autoCreateTime" json:"unlocked_at"`
}

// TableName 指定表名
func (Achievement) TableName() string {
	return "achievements"
}

// EngagementEvent 互动事件
// 对应数据库表 engagement_events
// 只追加不更新的轻量埋点，写入失败不影响主流程
type EngagementEvent struct {
	// ID 记录唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// UserID 所属用户ID
	UserID int64 `gorm:"index;not null" json:"user_id"`

	// Kind 事件类型，如 message_sent / session_started
	Kind string `gorm:"size:50;not null" json:"kind"`

	// CreatedAt 事件时间
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName 指定表名
func (EngagementEvent) TableName() string {
	return "engagement_events"
}
