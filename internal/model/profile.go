// Package model 定义了与数据库表对应的数据结构
package model

import (
	"time"
)

// SubscriptionTier 订阅档位常量
const (
	TierFree    = "free"    // 免费档
	TierBasic   = "basic"   // 基础档
	TierPremium = "premium" // 高级档
)

// Profile 用户教练档案
// 对应数据库表 profiles
// 记录引导问卷的结果以及订阅档位
// 档案在注册时创建，Onboarded 在引导完成后置为 true
type Profile struct {
	// ID 档案唯一标识，自增主键
	ID int64 `gorm:"primaryKey" json:"id"`

	// UserID 所属用户ID，外键关联 users.id，一个用户只有一份档案
	UserID int64 `gorm:"uniqueIndex;not null" json:"user_id"`

	// Onboarded 是否已完成引导问卷
	// 导航守卫据此决定是否跳转到引导页
	Onboarded bool `gorm:"default:false" json:"onboarded"`

	// Archetype 情商原型
	// 引导问卷得出的人格原型，仅作为提示词输入，服务端不做枚举校验
	Archetype *string `gorm:"size:50" json:"archetype,omitempty"`

	// CoachingMode 教练模式
	// 如 "gentle" / "direct"，决定 AI 回复的语气
	CoachingMode *string `gorm:"size:50" json:"coaching_mode,omitempty"`

	// SubscriptionTier 订阅档位
	// free / basic / premium，决定上下文窗口和每日额度
	SubscriptionTier string `gorm:"size:20;default:free;not null" json:"subscription_tier"`

	// CreatedAt 创建时间
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// UpdatedAt 更新时间
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 指定表名
func (Profile) TableName() string {
	return "profiles"
}
