package service

import (
	"context"
	"log"
	"time"

	"humanly-server/internal/model"
	"humanly-server/internal/repository"
)

// 互动事件类型
const (
	EngagementMessageSent = "message_sent" // 发送了一条消息
	EngagementNewChat     = "new_chat"     // 开启新对话
)

// StreakService 连续打卡与成就服务
// 每次完成一轮对话后更新打卡天数，并按阈值解锁成就
type StreakService struct {
	streakRepo *repository.StreakRepository
}

// NewStreakService 创建 StreakService 实例
func NewStreakService(streakRepo *repository.StreakRepository) *StreakService {
	return &StreakService{streakRepo: streakRepo}
}

// RecordExchange 记录一轮完成的对话
// 在 AI 回复成功后调用：更新打卡天数、解锁成就、写入互动事件
// 所有失败只记录日志，不影响对话主流程
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
func (s *StreakService) RecordExchange(ctx context.Context, userID int64) {
	if _, err := s.streakRepo.UnlockAchievement(ctx, userID, model.AchievementFirstMessage); err != nil {
		log.Printf("[WARN] 解锁首条消息成就失败: userID=%d, err=%v", userID, err)
	}

	if err := s.updateStreak(ctx, userID); err != nil {
		log.Printf("[WARN] 更新连续打卡失败: userID=%d, err=%v", userID, err)
	}

	if err := s.streakRepo.RecordEngagement(ctx, userID, EngagementMessageSent); err != nil {
		log.Printf("[WARN] 写入互动事件失败: userID=%d, err=%v", userID, err)
	}
}

// RecordNewChat 记录开启新对话的互动事件
// 参数:
//   - ctx: 上下文
//   - userID: 用户ID
func (s *StreakService) RecordNewChat(ctx context.Context, userID int64) {
	if err := s.streakRepo.RecordEngagement(ctx, userID, EngagementNewChat); err != nil {
		log.Printf("[WARN] 写入互动事件失败: userID=%d, err=%v", userID, err)
	}
}

// updateStreak 更新连续打卡天数
// 同一天重复对话不增加天数；昨天打过卡则 +1；否则从 1 重新计数
func (s *StreakService) updateStreak(ctx context.Context, userID int64) error {
	streak, err := s.streakRepo.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if streak == nil {
		streak = &model.Streak{UserID: userID}
	}

	today := truncateToDay(time.Now())

	if streak.LastActiveDate != nil {
		last := truncateToDay(*streak.LastActiveDate)
		switch {
		case last.Equal(today):
			// 今天已打卡，不重复计数
			return nil
		case last.Equal(today.AddDate(0, 0, -1)):
			// 昨天打过卡，连续天数 +1
			streak.CurrentStreak++
		default:
			// 中断，从 1 重新计数
			streak.CurrentStreak = 1
		}
	} else {
		streak.CurrentStreak = 1
	}

	if streak.CurrentStreak > streak.LongestStreak {
		streak.LongestStreak = streak.CurrentStreak
	}
	streak.LastActiveDate = &today

	if err := s.streakRepo.Save(ctx, streak); err != nil {
		return err
	}

	s.unlockStreakAchievements(ctx, userID, streak.CurrentStreak)
	return nil
}

// unlockStreakAchievements 按连续天数阈值解锁成就
func (s *StreakService) unlockStreakAchievements(ctx context.Context, userID int64, days int) {
	thresholds := []struct {
		days int
		code string
	}{
		{3, model.AchievementStreak3},
		{7, model.AchievementStreak7},
		{30, model.AchievementStreak30},
	}
	for _, t := range thresholds {
		if days < t.days {
			continue
		}
		unlocked, err := s.streakRepo.UnlockAchievement(ctx, userID, t.code)
		if err != nil {
			log.Printf("[WARN] 解锁成就失败: userID=%d, code=%s, err=%v", userID, t.code, err)
			continue
		}
		if unlocked {
			log.Printf("[INFO] 解锁成就: userID=%d, code=%s", userID, t.code)
		}
	}
}

// GetStreak 获取用户的连续打卡记录
// 无记录时返回全零的记录而不是错误
func (s *StreakService) GetStreak(ctx context.Context, userID int64) (*model.Streak, error) {
	streak, err := s.streakRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if streak == nil {
		streak = &model.Streak{UserID: userID}
	}
	return streak, nil
}

// ListAchievements 获取用户已解锁的成就列表
func (s *StreakService) ListAchievements(ctx context.Context, userID int64) ([]model.Achievement, error) {
	return s.streakRepo.ListAchievements(ctx, userID)
}

// truncateToDay 截断到当天零点（本地时区）
func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
